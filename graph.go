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
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sophon-stream/graphrt/config"
	"github.com/sophon-stream/graphrt/frame"
	"github.com/sophon-stream/graphrt/log"
	"github.com/sophon-stream/graphrt/metrics"
	"github.com/sophon-stream/graphrt/xerr"
)

// DefaultQueueCapacity is the per-lane buffer depth used for a
// connection that doesn't specify queue_size explicitly.
const DefaultQueueCapacity = 64

// ConnectionConfig wires one element's output port to another's input
// port (spec §6 "connections").
type ConnectionConfig struct {
	SrcID     int `json:"src_id"`
	SrcPort   int `json:"src_port"`
	DstID     int `json:"dst_id"`
	DstPort   int `json:"dst_port"`
	QueueSize int `json:"queue_size"`
}

// GraphConfig is one graph document (spec §6).
type GraphConfig struct {
	GraphID     int                `json:"graph_id"`
	GraphName   string             `json:"graph_name"`
	Elements    []ElementConfig    `json:"elements"`
	Connections []ConnectionConfig `json:"connections"`
}

// Graph owns the elements and connectors for one pipeline: it is the
// direct descendant of the teacher's topology+Stream pair, generalized
// from "nodes forward to successors directly" to "elements are wired
// through explicit, independently lane-counted Connectors," and from a
// roots-have-successors check to full Kahn-algorithm acyclicity
// validation, since this spec's connection list may reference elements
// declared in any order.
type Graph struct {
	id   int
	name string

	mu       sync.RWMutex
	elements map[int]*Element
	sources  []int
	sinks    []int

	listener ListenThread
	log      log.Logger
}

// BuildGraph parses a graph document, instantiates and initializes
// every element via the ElementFactory, wires connections into
// Connectors, and validates acyclicity. On any failure every element
// already initialized is uninitialized before the error is returned
// (spec §5: resource acquisition released on all exit paths including
// init-failure rollback).
func BuildGraph(raw []byte, listener ListenThread) (g *Graph, xe *xerr.Error) {
	var gc GraphConfig
	if err := json.Unmarshal(raw, &gc); err != nil {
		return nil, xerr.Wrap(xerr.ParseConfigureFail, err)
	}
	if len(gc.Elements) == 0 {
		return nil, xerr.New(xerr.ParseConfigureFail, "graph has no elements")
	}
	if listener == nil {
		listener = LogListener{}
	}

	g = &Graph{
		id:       gc.GraphID,
		name:     gc.GraphName,
		elements: make(map[int]*Element, len(gc.Elements)),
		listener: listener,
		log:      log.Component("graph", "graph_id", gc.GraphID, "graph_name", gc.GraphName),
	}

	threadNumber := make(map[int]int, len(gc.Elements))

	// Step 1: instantiate + initInternal every element.
	for _, ec := range gc.Elements {
		if _, exists := g.elements[ec.ID]; exists {
			g.rollback()
			return nil, xerr.New(xerr.ParseConfigureFail, "duplicate element id")
		}

		worker, werr := Make(ec.Type)
		if werr != nil {
			g.rollback()
			return nil, werr
		}

		cfg, cerr := config.FromJSON(ec.Configure)
		if cerr != nil {
			g.rollback()
			return nil, cerr
		}

		el := NewElement(ec, worker, listener)
		if err := el.initInternal(cfg); err != nil {
			g.rollback()
			return nil, err
		}

		g.elements[ec.ID] = el
		threadNumber[ec.ID] = el.threadNumber
		if ec.IsSource {
			g.sources = append(g.sources, ec.ID)
		}
		if ec.IsSink {
			g.sinks = append(g.sinks, ec.ID)
		}
	}

	// Step 2: wire connections into Connectors. Lane count on an input
	// port must equal the number of worker threads the owning (downstream)
	// element runs, per the Connector invariant in spec §3 — the
	// authoritative requirement also asserted as a testable property in
	// spec §8. The queue-size-per-lane is the connection's own tunable,
	// independent of lane count.
	edgesOut := make(map[int][]int) // src -> []dst, for topo sort
	for _, cc := range gc.Connections {
		src, ok := g.elements[cc.SrcID]
		if !ok {
			g.rollback()
			return nil, xerr.New(xerr.NoSuchElementID, "unknown src_id in connection")
		}
		dst, ok := g.elements[cc.DstID]
		if !ok {
			g.rollback()
			return nil, xerr.New(xerr.NoSuchElementID, "unknown dst_id in connection")
		}

		capacity := cc.QueueSize
		if capacity <= 0 {
			capacity = DefaultQueueCapacity
		}
		laneCount := threadNumber[cc.DstID]
		conn := NewConnector(laneCount, capacity)

		dst.bindInput(cc.DstPort, conn)
		src.bindOutput(cc.SrcPort, conn)

		edgesOut[cc.SrcID] = append(edgesOut[cc.SrcID], cc.DstID)
	}

	// Source elements are fed externally via pushSourceData rather than
	// by an upstream element, but still need a queue to hold pushed data
	// until a worker pops it. Bind an implicit single-lane Connector on
	// port 0 for any source element that wasn't already wired an input
	// there (spec §4.4: "source inputs are single-lane by convention").
	for _, id := range g.sources {
		el := g.elements[id]
		if len(el.InputPorts()) == 0 {
			el.bindInput(0, NewConnector(1, DefaultQueueCapacity))
		}
	}

	// Step 3: every non-source element must read from somewhere and
	// every non-sink element must write somewhere (spec §3's Graph
	// invariant, asserted at build time per spec §4.4 step 3). Without
	// this check a dangling element — wired to nothing on one side —
	// builds and starts successfully, then runs forever contributing no
	// data to the graph instead of failing fast at BuildGraph.
	for _, ec := range gc.Elements {
		el := g.elements[ec.ID]
		if !ec.IsSource && len(el.InputPorts()) == 0 {
			g.rollback()
			return nil, xerr.New(xerr.ParseConfigureFail, "element has no input port wired: "+ec.Name)
		}
		if !ec.IsSink && len(el.OutputPorts()) == 0 {
			g.rollback()
			return nil, xerr.New(xerr.ParseConfigureFail, "element has no output port wired: "+ec.Name)
		}
	}

	// Step 4: validate acyclicity by topological sort (Kahn).
	if err := validateAcyclic(g.elements, edgesOut); err != nil {
		g.rollback()
		return nil, err
	}

	// Let any element that joins branches across multiple input ports
	// (the built-in Converger) discover its non-default input ports now
	// that connections are wired.
	for _, el := range g.elements {
		aware, ok := el.Worker().(BranchPortAware)
		if !ok {
			continue
		}
		defaultPort := aware.DefaultInputPort()
		for _, port := range el.InputPorts() {
			if port != defaultPort {
				aware.RegisterBranchPort(port)
			}
		}
	}

	return g, nil
}

// BranchPortAware is implemented by elements (the built-in Converger)
// whose join logic needs to know every non-default input port it was
// wired to. The Graph calls RegisterBranchPort once per such port right
// after connections are wired, since port topology isn't known until then.
type BranchPortAware interface {
	DefaultInputPort() int
	RegisterBranchPort(port int)
}

func validateAcyclic(elements map[int]*Element, edgesOut map[int][]int) *xerr.Error {
	indegree := make(map[int]int, len(elements))
	for id := range elements {
		indegree[id] = 0
	}
	for _, dsts := range edgesOut {
		for _, d := range dsts {
			indegree[d]++
		}
	}

	var queue []int
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, d := range edgesOut[id] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if visited != len(elements) {
		return xerr.New(xerr.ParseConfigureFail, "graph contains a cycle")
	}
	return nil
}

// rollback releases every already-initialized element. Called when
// BuildGraph fails partway through.
func (g *Graph) rollback() {
	for _, el := range g.elements {
		el.worker.UninitInternal()
	}
}

// attachMetrics wires mc into every element the Graph owns, called by
// Engine.AddGraph right after BuildGraph succeeds and before start, so
// every worker loop and built-in routing element reports against it
// from its very first iteration.
func (g *Graph) attachMetrics(mc *metrics.Collectors) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, el := range g.elements {
		el.attachMetrics(mc, g.name)
	}
}

// ID returns the graph's declared id.
func (g *Graph) ID() int { return g.id }

// Name returns the graph's declared name.
func (g *Graph) Name() string { return g.name }

// start transitions every element to RUN. If any element fails to
// start, every element already started in this call is reverted (spec
// §4.4: "start fails and reverts all started elements if any element
// fails to start"). Element starts fan out concurrently via
// errgroup.Group, the one dependency this module adds beyond the
// teacher's own stack, because the teacher's Stream.Start starts nodes
// strictly sequentially and has no rollback-on-partial-failure path at
// all for inter-node start ordering.
func (g *Graph) start() *xerr.Error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var eg errgroup.Group
	var mu sync.Mutex
	var started []*Element

	for _, el := range g.elements {
		el := el
		eg.Go(func() error {
			if err := el.start(); err != nil {
				return err
			}
			mu.Lock()
			started = append(started, el)
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		for _, el := range started {
			el.stop()
		}
		if xe, ok := err.(*xerr.Error); ok {
			return xe
		}
		return xerr.Wrap(xerr.InitFail, err)
	}
	return nil
}

// stop sets every element to STOP, joins all worker threads, then
// releases resources via UninitInternal.
func (g *Graph) stop() *xerr.Error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var wg sync.WaitGroup
	for _, el := range g.elements {
		el := el
		wg.Add(1)
		go func() {
			defer wg.Done()
			el.stop()
		}()
	}
	wg.Wait()
	return nil
}

func (g *Graph) pause() *xerr.Error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, el := range g.elements {
		el.pause()
	}
	return nil
}

func (g *Graph) resume() *xerr.Error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, el := range g.elements {
		el.resume()
	}
	return nil
}

// pushSourceData forwards payload into elementId's input port on lane 0
// (source inputs are single-lane by convention).
func (g *Graph) pushSourceData(elementID, port int, payload *frame.ObjectMetadata) *xerr.Error {
	g.mu.RLock()
	el, ok := g.elements[elementID]
	g.mu.RUnlock()
	if !ok || !el.IsSource() {
		return xerr.New(xerr.NoSuchElementID, "no such source element")
	}
	return el.PushInputData(port, 0, payload)
}

// setSinkHandler registers the user callback on a sink element's output port.
func (g *Graph) setSinkHandler(elementID, port int, handler SinkHandler) *xerr.Error {
	g.mu.RLock()
	el, ok := g.elements[elementID]
	g.mu.RUnlock()
	if !ok || !el.IsSink() {
		return xerr.New(xerr.NoSuchElementID, "no such sink element")
	}
	el.SetSinkHandler(port, handler)
	return nil
}
