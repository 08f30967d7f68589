package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// distributerConfigureJSON mirrors the shape a real Distributer element
// receives in its "configure" subtree (spec §4.6): a default port plus
// a list of class-routed sub-outputs, each with its own rate limit.
const distributerConfigureJSON = `{
	"default_port": 0,
	"class_names_file": "coco.names",
	"routes": [
		{"port": 1, "classes": ["car", "truck"], "interval": 0.5},
		{"port": 2, "classes": ["person"], "interval": 1.0}
	]
}`

func TestFromJSONDecodesElementConfigure(t *testing.T) {
	c, xe := FromJSON([]byte(distributerConfigureJSON))
	require.Nil(t, xe)

	assert.Equal(t, 0, c.Get("default_port").Int(-1))
	assert.Equal(t, "coco.names", c.Get("class_names_file").String(""))

	routes := c.Get("routes").Array()
	require.Len(t, routes, 2)
	assert.Equal(t, 1, routes[0].Get("port").Int(-1))
	assert.Equal(t, 0.5, routes[0].Get("interval").Float64(-1))

	classes := routes[0].Get("classes").Array()
	require.Len(t, classes, 2)
	assert.Equal(t, "car", classes[0].String(""))
	assert.Equal(t, "truck", classes[1].String(""))
}

func TestFromJSONEmptyBodyYieldsResolvableConfig(t *testing.T) {
	c, xe := FromJSON(nil)
	require.Nil(t, xe)
	assert.False(t, c.IsSet("default_port"))
	assert.Equal(t, 0, c.Get("default_port").Int(0))
}

func TestFromJSONRejectsMalformedBody(t *testing.T) {
	_, xe := FromJSON([]byte(`{"default_port":`))
	require.NotNil(t, xe)
	assert.Equal(t, "PARSE_CONFIGURE_FAIL", xe.Code.String())
}

func TestConfigIsSet(t *testing.T) {
	c := NewConfig(nil)
	c.Set(4, "routes.0.port")
	assert.True(t, c.IsSet("routes"))
	assert.True(t, c.IsSet("routes.0.port"))
	assert.False(t, c.IsSet("routes.0.interval"))
	assert.False(t, c.IsSet("routes.9.port"))
}

// TestConfigSetGet exercises Set/Get against the same append ("#"),
// index-grow, Array, and Map paths the teacher's generic fixture
// exercised, but against a route-list shape this module actually
// builds (Distributer.InitInternal assembling test configuration).
func TestConfigSetGet(t *testing.T) {
	c := NewConfig(nil)

	c.Set("car", "routes.0.classes.#")
	assert.Equal(t, "car", c.Get("routes.0.classes.0").String(""))

	c.Set(1, "routes.0.port")
	assert.Equal(t, int64(1), c.Get("routes.0.port").Int64(0))

	c.Set(0.5, "routes.#.interval")
	assert.Equal(t, 0.5, c.Get("routes.1.interval").Float64(0))

	c.Set(true, "routes.5.internal_only")
	assert.True(t, c.Get("routes.5.internal_only").Bool(false))

	require.NotNil(t, c.Get("routes").Array())
	assert.Len(t, c.Get("routes").Array(), 6)

	require.NotNil(t, c.Get("routes.0").Map())

	c.Set("500ms", "routes.0.interval_duration")
	assert.Equal(t, 500*time.Millisecond, c.Get("routes.0.interval_duration").Duration(0))

	dt, _ := time.Parse(time.RFC3339, "2026-07-31T00:00:00Z")
	c.Set("2026-07-31T00:00:00Z", "routes.0.effective_at")
	assert.Equal(t, dt, c.Get("routes.0.effective_at").Time(time.Now()))
}

func TestConfigGetDefaults(t *testing.T) {
	c := NewConfig(nil)

	assert.Equal(t, "coco.names", c.Get("class_names_file").String("coco.names"))
	assert.Equal(t, true, c.Get("enabled").Bool(true))
	assert.Equal(t, int64(64), c.Get("queue_size").Int64(64))
	assert.Equal(t, float64(0.5), c.Get("interval").Float64(0.5))
	assert.Equal(t, uint64(8), c.Get("thread_number").Uint64(8))
	assert.Equal(t, time.Microsecond, c.Get("poll_interval").Duration(time.Microsecond))

	dt, _ := time.Parse(time.RFC3339Nano, time.RFC3339Nano)
	assert.Equal(t, dt, c.Get("effective_at").Time(dt))
}
