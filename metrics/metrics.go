// Package metrics holds the Prometheus collectors the runtime updates
// from Element worker loops and the built-in Distributer/Converger
// elements. It completes the wiring the teacher's own streams.go left
// as a commented-out sketch (a prometheus.SummaryVec for per-record
// processing time, registered/unregistered around a httpserver) —
// here turned into real gauges/counters registered against a private
// Registry rather than the global default one, so multiple Engines in
// the same process (e.g. in tests) don't collide on metric names.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is a private Prometheus registry. Construct one per Engine
// instance that wants metrics and pass it to NewCollectors.
type Registry = prometheus.Registry

// NewRegistry builds a private registry suitable for passing to
// NewCollectors and for serving from httpapi.
func NewRegistry() *Registry {
	return prometheus.NewRegistry()
}

// Collectors groups every metric the runtime updates.
type Collectors struct {
	QueueDepth             *prometheus.GaugeVec
	ElementThreadStatus    *prometheus.GaugeVec
	FramesTotal            *prometheus.CounterVec
	DistributerRouteEmits  *prometheus.CounterVec
	ConvergerReleasesTotal *prometheus.CounterVec
}

// NewCollectors builds and registers every runtime metric against reg.
func NewCollectors(reg *Registry) *Collectors {
	c := &Collectors{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "graphrt_queue_depth",
			Help: "Current number of buffered frames on a connector lane.",
		}, []string{"graph", "element", "port", "lane"}),
		ElementThreadStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "graphrt_element_thread_status",
			Help: "Current lifecycle state of an element (0=init,1=run,2=pause,3=stop).",
		}, []string{"graph", "element"}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphrt_frames_total",
			Help: "Frames observed at an element boundary.",
		}, []string{"graph", "element", "direction"}),
		DistributerRouteEmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphrt_distributer_route_emits_total",
			Help: "Sub-frames emitted by a Distributer route.",
		}, []string{"graph", "element", "route"}),
		ConvergerReleasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphrt_converger_releases_total",
			Help: "Frames released by a Converger after all branches joined.",
		}, []string{"graph", "element"}),
	}

	reg.MustRegister(
		c.QueueDepth,
		c.ElementThreadStatus,
		c.FramesTotal,
		c.DistributerRouteEmits,
		c.ConvergerReleasesTotal,
	)
	return c
}
