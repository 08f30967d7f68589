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
	"time"

	"github.com/sophon-stream/graphrt/frame"
	"github.com/sophon-stream/graphrt/xerr"
)

// PollInterval is the sleep used by every cooperative poll loop in this
// module: Connector blocking pushes, Element worker idle spins, and the
// Converger's default-port wait. Exported so built-in and external
// elements implementing Worker.DoWork can honor the same cadence spec
// §5 mandates (state transitions must take effect within one interval).
const PollInterval = 10 * time.Millisecond

const pollInterval = PollInterval

// Connector is a bounded FIFO between one element's output port and one
// element's input port, partitioned into independently-served lanes
// (data pipes). It is the direct generalization of the teacher's
// per-node tasks.buffers: where that type held one undifferentiated
// []chan Record per node, a Connector is a named edge with an explicit
// lane count fixed at graph build time, so multiple input ports on the
// same element can each have their own Connector and lane geometry.
type Connector struct {
	lanes []chan *frame.ObjectMetadata
	cap   int
}

// NewConnector builds a Connector with laneCount independent lanes, each
// buffered to capacity.
func NewConnector(laneCount, capacity int) *Connector {
	if laneCount < 1 {
		laneCount = 1
	}
	c := &Connector{
		lanes: make([]chan *frame.ObjectMetadata, laneCount),
		cap:   capacity,
	}
	for i := range c.lanes {
		c.lanes[i] = make(chan *frame.ObjectMetadata, capacity)
	}
	return c
}

// LaneCount returns the number of lanes this Connector was built with.
func (c *Connector) LaneCount() int {
	return len(c.lanes)
}

// Capacity returns the buffer capacity of a lane.
func (c *Connector) Capacity(lane int) int {
	return c.cap
}

// Push enqueues v onto lane, failing immediately with QUEUE_FULL if the
// lane is at capacity.
func (c *Connector) Push(lane int, v *frame.ObjectMetadata) *xerr.Error {
	select {
	case c.lanes[lane%len(c.lanes)] <- v:
		return nil
	default:
		return xerr.New(xerr.QueueFull, "connector lane full")
	}
}

// PushWait enqueues v onto lane, blocking with periodic status checks
// (every pollInterval) while the lane is full, until active reports
// false (the owning element has left RUN) or the push succeeds.
func (c *Connector) PushWait(lane int, v *frame.ObjectMetadata, active func() bool) *xerr.Error {
	ch := c.lanes[lane%len(c.lanes)]
	for {
		select {
		case ch <- v:
			return nil
		default:
		}
		if active != nil && !active() {
			return xerr.New(xerr.Timeout, "push aborted: element no longer running")
		}
		time.Sleep(pollInterval)
		select {
		case ch <- v:
			return nil
		default:
		}
	}
}

// Pop dequeues from lane without blocking; ok is false if the lane is
// currently empty.
func (c *Connector) Pop(lane int) (v *frame.ObjectMetadata, ok bool) {
	select {
	case v = <-c.lanes[lane%len(c.lanes)]:
		return v, true
	default:
		return nil, false
	}
}

// Len reports how many payloads are currently buffered on lane, for
// the QueueDepth gauge in package metrics.
func (c *Connector) Len(lane int) int {
	return len(c.lanes[lane%len(c.lanes)])
}
