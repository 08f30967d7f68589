package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewCollectorsRegistersEveryMetric guards against a collector
// silently failing to register (a naming collision, say) going
// unnoticed, since MustRegister panics on duplicate descriptors.
func TestNewCollectorsRegistersEveryMetric(t *testing.T) {
	reg := NewRegistry()
	require.NotPanics(t, func() { NewCollectors(reg) })
}

// TestCollectorsObserveValues exercises each collector the way
// Element/Distributer/Converger update them, and checks the exposed
// value through testutil rather than just "it didn't panic".
func TestCollectorsObserveValues(t *testing.T) {
	reg := NewRegistry()
	c := NewCollectors(reg)

	c.FramesTotal.WithLabelValues("g", "e", "in").Inc()
	c.FramesTotal.WithLabelValues("g", "e", "in").Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(c.FramesTotal.WithLabelValues("g", "e", "in")))

	c.QueueDepth.WithLabelValues("g", "e", "0", "0").Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(c.QueueDepth.WithLabelValues("g", "e", "0", "0")))

	c.ElementThreadStatus.WithLabelValues("g", "e").Set(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.ElementThreadStatus.WithLabelValues("g", "e")))

	c.DistributerRouteEmits.WithLabelValues("g", "dist", "1").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(c.DistributerRouteEmits.WithLabelValues("g", "dist", "1")))

	c.ConvergerReleasesTotal.WithLabelValues("g", "conv").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(c.ConvergerReleasesTotal.WithLabelValues("g", "conv")))
}
