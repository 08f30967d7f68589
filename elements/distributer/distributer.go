// Package distributer implements the built-in fan-out routing element:
// it emits every frame on a default port and, per configured route,
// emits a sub-frame carrying exactly one matched detection (the first
// one on the frame) whenever the per-route rate limit allows it.
//
// Grounded on _examples/original_source/element/tools/distributer/include/distributer.h
// for the configuration field names (default_port, routes, classes,
// interval, class_names_file); no .cc implementation was retrieved for
// this element, so the algorithm itself follows spec §4.6 directly.
package distributer

import (
	"strconv"
	"sync"
	"time"

	"github.com/sophon-stream/graphrt"
	"github.com/sophon-stream/graphrt/config"
	"github.com/sophon-stream/graphrt/frame"
	"github.com/sophon-stream/graphrt/xerr"
)

// TypeName is the ElementFactory registration name for this element.
const TypeName = "distributer"

// inputPort is the Distributer's single input port.
const inputPort = 0

func init() {
	graphrt.Register(TypeName, func() graphrt.Worker { return &Distributer{} })
}

type route struct {
	port     int
	classes  map[string]struct{}
	interval time.Duration
	lastEmit time.Time
}

// Distributer is a graphrt.Worker. One instance serves every data pipe
// of its owning Element; InitInternal runs once, DoWork is called
// concurrently by each worker so route rate-limit state is mutex
// guarded.
type Distributer struct {
	mu          sync.Mutex
	defaultPort int
	routes      []*route
}

// InitInternal parses {default_port, routes:[{port,classes,interval}],
// class_names_file}. class_names_file is accepted for configuration
// compatibility but unused: routes already carry class names directly,
// so no id<->name table needs to be loaded to evaluate them.
func (d *Distributer) InitInternal(cfg config.Config) *xerr.Error {
	d.defaultPort = cfg.Get("default_port").Int(0)

	for _, rc := range cfg.Get("routes").Array() {
		classes := make(map[string]struct{})
		for _, c := range rc.Get("classes").Array() {
			if name := c.String(""); name != "" {
				classes[name] = struct{}{}
			}
		}
		seconds := rc.Get("interval").Float64(0)
		d.routes = append(d.routes, &route{
			port:     rc.Get("port").Int(0),
			classes:  classes,
			interval: time.Duration(seconds * float64(time.Second)),
		})
	}
	return nil
}

func (d *Distributer) UninitInternal() {}

// DoWork polls the input port for one frame, emits it unmodified on
// default_port, then walks the configured routes emitting rate-limited
// sub-frames for matching detections, per spec §4.6.
func (d *Distributer) DoWork(el *graphrt.Element, dataPipeID int) *xerr.Error {
	parent, ok := el.PopInputData(inputPort, dataPipeID)
	if !ok {
		time.Sleep(graphrt.PollInterval)
		return nil
	}

	if parent.EOS {
		parent.NumBranches = 1
		return el.PushOutputData(d.defaultPort, parent)
	}

	branchesEmitted := d.emitRoutes(el, parent)
	// numBranches must be set on the parent before it is enqueued on
	// default_port: Converger only reads it after popping, so the write
	// happens-before the emit in program order on this single goroutine
	// (spec §9 "Distributer emits before knowing numBranches").
	parent.NumBranches = 1 + branchesEmitted

	return el.PushOutputData(d.defaultPort, parent)
}

func (d *Distributer) emitRoutes(el *graphrt.Element, parent *frame.ObjectMetadata) int {
	now := time.Now()
	emitted := 0

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.routes {
		for _, det := range parent.Detections {
			if _, matches := r.classes[det.ClassName]; !matches {
				continue
			}
			if !r.lastEmit.IsZero() && now.Sub(r.lastEmit) < r.interval {
				continue
			}
			sub := frame.SubFrame(parent, det)
			if err := el.PushOutputData(r.port, sub); err == nil {
				r.lastEmit = now
				emitted++
				if m := el.Metrics(); m != nil {
					m.DistributerRouteEmits.WithLabelValues(el.GraphName(), el.Name(), strconv.Itoa(r.port)).Inc()
				}
			}
			break // one matched detection per route per frame, per spec wording
		}
	}
	return emitted
}
