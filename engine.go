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
	"sync"

	"github.com/sophon-stream/graphrt/frame"
	"github.com/sophon-stream/graphrt/metrics"
	"github.com/sophon-stream/graphrt/xerr"
)

// Engine is the process-wide registry of graphs: add/start/stop/pause/
// resume and source-push. It is the promotion of the teacher's single
// *Stream instance to a map of instances, guarded the way spec §4.5
// requires — a single mutex, held only long enough to look the Graph up
// (addGraph is the one exception, holding through init+start).
type Engine struct {
	mu       sync.Mutex
	graphs   map[int]*Graph
	listener ListenThread
	metrics  *metrics.Collectors
}

// NewEngine builds an empty Engine. listener may be nil, in which case
// a LogListener is used.
func NewEngine(listener ListenThread) *Engine {
	if listener == nil {
		listener = LogListener{}
	}
	return &Engine{
		graphs:   make(map[int]*Graph),
		listener: listener,
	}
}

// AttachMetrics wires every graph this Engine adds from here on to mc
// (spec §4.11, a domain-stack addition). Call once at startup, before
// the first AddGraph; httpapi.New takes the same *metrics.Registry mc
// was built from so /metrics can scrape it.
func (e *Engine) AttachMetrics(mc *metrics.Collectors) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = mc
}

// AddGraph parses and builds a graph from raw, then starts it. The
// mutex is held across both init and start, as spec §4.5 requires, so
// no concurrent AddGraph/RemoveGraph can observe a half-built graph id.
// Both outcomes are reported to the ListenThread.
func (e *Engine) AddGraph(raw []byte) (graphID int, xe *xerr.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := BuildGraph(raw, e.listener)
	if err != nil {
		e.listener.ReportStatus(err.Code)
		return 0, err
	}

	if _, exists := e.graphs[g.id]; exists {
		e.listener.ReportStatus(xerr.ParseConfigureFail)
		return 0, xerr.New(xerr.ParseConfigureFail, "graph id already exists")
	}

	if e.metrics != nil {
		g.attachMetrics(e.metrics)
	}

	if err := g.start(); err != nil {
		e.listener.ReportStatus(err.Code)
		return 0, err
	}

	e.graphs[g.id] = g
	e.listener.ReportStatus(xerr.Success)
	return g.id, nil
}

// RemoveGraph stops and drops the graph, if present.
func (e *Engine) RemoveGraph(graphID int) *xerr.Error {
	e.mu.Lock()
	g, ok := e.graphs[graphID]
	if ok {
		delete(e.graphs, graphID)
	}
	e.mu.Unlock()

	if !ok {
		return xerr.New(xerr.NoSuchGraphID, "no such graph")
	}
	return g.stop()
}

// GraphExist reports whether graphID is currently registered.
func (e *Engine) GraphExist(graphID int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.graphs[graphID]
	return ok
}

// GetGraphIds returns every currently registered graph id.
func (e *Engine) GetGraphIds() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int, 0, len(e.graphs))
	for id := range e.graphs {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) lookup(graphID int) (*Graph, *xerr.Error) {
	e.mu.Lock()
	g, ok := e.graphs[graphID]
	e.mu.Unlock()
	if !ok {
		return nil, xerr.New(xerr.NoSuchGraphID, "no such graph")
	}
	return g, nil
}

// Start is a no-op success if the graph is already running.
func (e *Engine) Start(graphID int) *xerr.Error {
	g, err := e.lookup(graphID)
	if err != nil {
		return err
	}
	return g.start()
}

// Stop joins every worker thread of the graph.
func (e *Engine) Stop(graphID int) *xerr.Error {
	g, err := e.lookup(graphID)
	if err != nil {
		return err
	}
	return g.stop()
}

// Pause toggles every element of the graph from RUN to PAUSE.
func (e *Engine) Pause(graphID int) *xerr.Error {
	g, err := e.lookup(graphID)
	if err != nil {
		return err
	}
	return g.pause()
}

// Resume toggles every element of the graph from PAUSE back to RUN.
func (e *Engine) Resume(graphID int) *xerr.Error {
	g, err := e.lookup(graphID)
	if err != nil {
		return err
	}
	return g.resume()
}

// PushSourceData forwards payload into a source element's input port.
func (e *Engine) PushSourceData(graphID, elementID, port int, payload *frame.ObjectMetadata) *xerr.Error {
	g, err := e.lookup(graphID)
	if err != nil {
		return err
	}
	return g.pushSourceData(elementID, port, payload)
}

// SetSinkHandler registers a sink callback on a graph's sink element.
func (e *Engine) SetSinkHandler(graphID, elementID, port int, handler SinkHandler) *xerr.Error {
	g, err := e.lookup(graphID)
	if err != nil {
		return err
	}
	return g.setSinkHandler(elementID, port, handler)
}
