package graphrt

/*
   Copyright 2018 Bruno Moura <brunotm@gmail.com>

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

import (
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sophon-stream/graphrt/config"
	"github.com/sophon-stream/graphrt/frame"
	"github.com/sophon-stream/graphrt/log"
	"github.com/sophon-stream/graphrt/metrics"
	"github.com/sophon-stream/graphrt/types"
	"github.com/sophon-stream/graphrt/xerr"
)

// SinkHandler is the user callback invoked synchronously on a sink
// element's worker thread, in place of forwarding to a Connector.
type SinkHandler func(payload *frame.ObjectMetadata)

// Worker is the subclass-defined contract every element type (built-in
// or external collaborator) must satisfy. It plays the role the
// teacher's Processor interface plays for stream nodes, generalized to
// the explicit lifecycle (InitInternal/UninitInternal) and per-data-pipe
// doWork loop this spec requires.
type Worker interface {
	// InitInternal parses this element's configuration subtree.
	InitInternal(cfg config.Config) *xerr.Error
	// DoWork is invoked repeatedly by worker dataPipeID while the
	// element is RUN. Implementations must not block indefinitely on
	// empty input: poll el's Connectors and return promptly so the
	// caller's cooperative loop can observe PAUSE/STOP in bounded time.
	DoWork(el *Element, dataPipeID int) *xerr.Error
	// UninitInternal releases any resource acquired in InitInternal.
	UninitInternal()
}

// ElementConfig is the per-element subtree of a graph document (spec §6).
type ElementConfig struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Side         string          `json:"side"`
	DeviceID     int             `json:"device_id"`
	ThreadNumber int             `json:"thread_number"`
	IsSource     bool            `json:"is_source"`
	IsSink       bool            `json:"is_sink"`
	Configure    json.RawMessage `json:"configure"`
}

// Element is a worker-hosting processing node: input/output ports each
// bound to Connectors, a pool of worker goroutines (one per data pipe),
// and a lifecycle state shared atomically across them. It is the
// generalization of the teacher's Node+Context pair: where a Node only
// ever forwards to its direct successors over one implicit task pool,
// an Element exposes named, independently-lane-counted ports and lets
// its Worker decide explicitly which port/lane to read and write.
type Element struct {
	id           int
	name         string
	side         string
	deviceID     int
	threadNumber int
	role         types.Role

	status atomic.Int32 // types.ThreadStatus

	mu      sync.RWMutex
	inputs  map[int]*Connector   // port -> connector this element reads
	outputs map[int][]*Connector // port -> connectors this element fans out to
	sinks   map[int]SinkHandler  // port -> registered sink handler

	worker   Worker
	listener ListenThread
	log      log.Logger

	graphName string
	metrics   *metrics.Collectors

	wg sync.WaitGroup
}

// NewElement constructs an Element in StatusInit from a parsed
// ElementConfig and the Worker instance the ElementFactory produced.
func NewElement(cfg ElementConfig, worker Worker, listener ListenThread) *Element {
	e := &Element{
		id:           cfg.ID,
		name:         cfg.Name,
		side:         cfg.Side,
		deviceID:     cfg.DeviceID,
		threadNumber: cfg.ThreadNumber,
		worker:       worker,
		listener:     listener,
		inputs:       make(map[int]*Connector),
		outputs:      make(map[int][]*Connector),
		sinks:        make(map[int]SinkHandler),
	}
	if cfg.IsSource {
		e.role = types.RoleSource
	} else if cfg.IsSink {
		e.role = types.RoleSink
	}
	if e.threadNumber < 1 {
		e.threadNumber = 1
	}
	e.status.Store(int32(types.StatusInit))
	e.log = log.Component("element", "element_id", e.id, "element_name", e.name)
	return e
}

func (e *Element) ID() int   { return e.id }
func (e *Element) Name() string { return e.name }
func (e *Element) IsSource() bool { return e.role == types.RoleSource }
func (e *Element) IsSink() bool   { return e.role == types.RoleSink }

// GraphName returns the owning Graph's declared name, used to label
// every metric this Element reports.
func (e *Element) GraphName() string { return e.graphName }

// Metrics returns the Collectors this Element reports to, or nil if
// the owning Engine was built without metrics. Built-in elements like
// Distributer/Converger that emit their own domain-specific counters
// (route emissions, converger releases) read this directly; callers
// must nil-check before use.
func (e *Element) Metrics() *metrics.Collectors { return e.metrics }

// attachMetrics wires a Collectors set into the element, called once
// by Graph.attachMetrics after BuildGraph, before Engine.AddGraph
// starts the graph. A nil mc leaves metrics reporting disabled.
func (e *Element) attachMetrics(mc *metrics.Collectors, graphName string) {
	e.metrics = mc
	e.graphName = graphName
}

// Status returns the current lifecycle state.
func (e *Element) Status() types.ThreadStatus {
	return types.ThreadStatus(e.status.Load())
}

// bindInput attaches a Connector as an element's input for port,
// called by the Graph while wiring connections.
func (e *Element) bindInput(port int, c *Connector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs[port] = c
}

// bindOutput fans an element's output port out to an additional
// Connector, called by the Graph while wiring connections.
func (e *Element) bindOutput(port int, c *Connector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs[port] = append(e.outputs[port], c)
}

// SetSinkHandler registers the callback a sink element invokes from
// PushOutputData instead of forwarding to a Connector.
func (e *Element) SetSinkHandler(port int, handler SinkHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks[port] = handler
}

// InputPorts returns every port with a Connector currently bound as
// this element's input, in no particular order.
func (e *Element) InputPorts() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ports := make([]int, 0, len(e.inputs))
	for p := range e.inputs {
		ports = append(ports, p)
	}
	return ports
}

// OutputPorts returns every port with at least one Connector currently
// fanned out from this element's output, in no particular order.
func (e *Element) OutputPorts() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ports := make([]int, 0, len(e.outputs))
	for p, conns := range e.outputs {
		if len(conns) > 0 {
			ports = append(ports, p)
		}
	}
	return ports
}

// Worker returns the element's underlying Worker, for Graph wiring
// steps that need to type-assert optional interfaces (e.g. a
// Converger's branch-port registration) once connections are known.
func (e *Element) Worker() Worker {
	return e.worker
}

// PushInputData is the external entry point used by the Graph's source
// adapters and the Engine to feed data into a source element. Per spec,
// source inputs are single-lane, so callers use lane 0 by convention.
func (e *Element) PushInputData(port, lane int, v *frame.ObjectMetadata) *xerr.Error {
	e.mu.RLock()
	c := e.inputs[port]
	e.mu.RUnlock()
	if c == nil {
		return xerr.New(xerr.NoSuchElementID, "no connector bound on input port")
	}
	return c.Push(lane, v)
}

// PopInputData is used inside DoWork to read the element's own input.
func (e *Element) PopInputData(port, lane int) (*frame.ObjectMetadata, bool) {
	e.mu.RLock()
	c := e.inputs[port]
	e.mu.RUnlock()
	if c == nil {
		return nil, false
	}
	v, ok := c.Pop(lane)
	if ok {
		e.observeFrame("in", port, lane, c)
	}
	return v, ok
}

// PushOutputData is used inside DoWork to emit a result. If the element
// is a sink and a SinkHandler is registered for port, the handler runs
// synchronously on the calling worker. Otherwise v is pushed to every
// Connector fanned out from port; the destination lane on each
// Connector is computed as channel_id_internal mod lane_count, per the
// routing invariant in spec §4.2 — callers never choose the lane
// themselves, which makes it impossible to violate the invariant by
// passing the wrong one.
func (e *Element) PushOutputData(port int, v *frame.ObjectMetadata) *xerr.Error {
	e.mu.RLock()
	handler := e.sinks[port]
	conns := e.outputs[port]
	e.mu.RUnlock()

	if handler != nil {
		handler(v)
		return nil
	}

	var first *xerr.Error
	for _, c := range conns {
		lane := v.ChannelIDInternal % c.LaneCount()
		if lane < 0 {
			lane += c.LaneCount()
		}
		if err := c.PushWait(lane, v, e.isRunning); err != nil && first == nil {
			first = err
			continue
		}
		e.observeFrame("out", port, lane, c)
	}
	return first
}

func (e *Element) isRunning() bool {
	return e.Status() == types.StatusRun
}

// observeFrame updates the FramesTotal counter and QueueDepth gauge
// for one port/lane crossing. A no-op when the element was built
// without metrics (spec §4.11 is a domain-stack addition, not a core
// requirement).
func (e *Element) observeFrame(direction string, port, lane int, c *Connector) {
	if e.metrics == nil {
		return
	}
	portStr := strconv.Itoa(port)
	e.metrics.FramesTotal.WithLabelValues(e.graphName, e.name, direction).Inc()
	e.metrics.QueueDepth.WithLabelValues(e.graphName, e.name, portStr, strconv.Itoa(lane)).Set(float64(c.Len(lane)))
}

// observeStatus updates the ElementThreadStatus gauge on every
// lifecycle transition.
func (e *Element) observeStatus() {
	if e.metrics == nil {
		return
	}
	e.metrics.ElementThreadStatus.WithLabelValues(e.graphName, e.name).Set(float64(e.Status()))
}

// initInternal parses this element's configuration subtree. Called
// once by BuildGraph before any worker runs (spec §4.4 step 1).
func (e *Element) initInternal(cfg config.Config) *xerr.Error {
	return e.worker.InitInternal(cfg)
}

// start transitions the element to RUN and spawns threadNumber worker
// goroutines, each driving DoWork(dataPipeID) in the teacher's
// poll-and-sleep style (task.go's `for record := range task`
// generalized to a cooperative, state-observing loop since PAUSE/STOP
// must be observed without waiting on channel close).
func (e *Element) start() *xerr.Error {
	if e.Status() == types.StatusRun {
		return nil // repeated start on a running element is a no-op success
	}
	e.status.Store(int32(types.StatusRun))
	e.observeStatus()
	for i := 0; i < e.threadNumber; i++ {
		e.wg.Add(1)
		go e.runWorker(i)
	}
	return nil
}

func (e *Element) runWorker(dataPipeID int) {
	defer e.wg.Done()
	wlog := log.Component("worker", "element_id", e.id, "data_pipe", dataPipeID)
	for {
		switch e.Status() {
		case types.StatusStop:
			return
		case types.StatusPause:
			time.Sleep(pollInterval)
			continue
		default:
			if err := e.worker.DoWork(e, dataPipeID); err != nil {
				wlog.Errorw("doWork error", "code", err.Code.String(), "error", err)
				if e.listener != nil {
					e.listener.ReportStatus(err.Code)
				}
			}
		}
	}
}

// stop transitions to STOP, joins every worker, then releases resources.
func (e *Element) stop() {
	if e.Status() == types.StatusStop {
		return // repeated stop on a stopped element is a no-op success
	}
	e.status.Store(int32(types.StatusStop))
	e.observeStatus()
	e.wg.Wait()
	e.worker.UninitInternal()
}

func (e *Element) pause() {
	if e.Status() == types.StatusRun {
		e.status.Store(int32(types.StatusPause))
		e.observeStatus()
	}
}

func (e *Element) resume() {
	if e.Status() == types.StatusPause {
		e.status.Store(int32(types.StatusRun))
		e.observeStatus()
	}
}
