// Package converger implements the built-in fan-in routing element: it
// rejoins the branches a distributer package Distributer fanned out,
// re-emitting each frame exactly once, after every expected branch has
// reported, in strict per-channel input order.
//
// Grounded directly on
// _examples/original_source/element/tools/converger/src/converger.cc,
// translated idiom for idiom: the same two nested maps (candidates,
// branches), the same blocking-poll-on-default-port plus
// non-blocking-sweep-of-other-ports structure, and the same
// stop-at-first-unsatisfied-head-frame release loop. Unlike the source,
// both maps are erased together on release (spec §4.7/§9 flags the
// source's branches-never-erased behavior as a leak implementers
// SHOULD fix).
package converger

import (
	"sort"
	"sync"
	"time"

	"github.com/sophon-stream/graphrt"
	"github.com/sophon-stream/graphrt/config"
	"github.com/sophon-stream/graphrt/frame"
	"github.com/sophon-stream/graphrt/types"
	"github.com/sophon-stream/graphrt/xerr"
)

// TypeName is the ElementFactory registration name for this element.
const TypeName = "converger"

// outputPort is the Converger's single output port.
const outputPort = 0

func init() {
	graphrt.Register(TypeName, func() graphrt.Worker { return &Converger{} })
}

type frameKey struct {
	channel int
	frameID uint64
}

// Converger is a graphrt.Worker. A single instance backs every data
// pipe of its owning Element: the join state is shared across ports
// and must be guarded by one mutex, since sub-result arrivals on
// non-default ports can race the default-port arrival they join with.
type Converger struct {
	mu          sync.Mutex
	defaultPort int
	candidates  map[frameKey]*frame.ObjectMetadata
	branches    map[frameKey]int
	otherPorts  []int
}

// InitInternal parses {default_port}. Every input port on the owning
// Element other than default_port is treated as a branch-result port;
// those ports are not enumerated in configuration but registered by the
// Graph through RegisterBranchPort once connections are wired, since the
// graph's connection list is the source of truth for which ports
// actually exist.
func (c *Converger) InitInternal(cfg config.Config) *xerr.Error {
	c.defaultPort = cfg.Get("default_port").Int(0)
	c.candidates = make(map[frameKey]*frame.ObjectMetadata)
	c.branches = make(map[frameKey]int)
	return nil
}

func (c *Converger) UninitInternal() {}

// DefaultInputPort reports the port that carries the unmodified parent
// frame, as configured.
func (c *Converger) DefaultInputPort() int {
	return c.defaultPort
}

// RegisterBranchPort tells the Converger to sweep an additional input
// port for branch results. The Graph calls this once per wired
// non-default input port after InitInternal, since port topology is
// only known once connections are wired.
func (c *Converger) RegisterBranchPort(port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.otherPorts {
		if p == port {
			return
		}
	}
	c.otherPorts = append(c.otherPorts, port)
}

// DoWork implements the algorithm in spec §4.7 step by step: blocking
// poll for one default-port frame, one non-blocking sweep of every
// other port, then an in-order release walk.
func (c *Converger) DoWork(el *graphrt.Element, dataPipeID int) *xerr.Error {
	parent, ok := el.PopInputData(c.defaultPort, dataPipeID)
	for !ok && el.Status() == types.StatusRun {
		time.Sleep(graphrt.PollInterval)
		parent, ok = el.PopInputData(c.defaultPort, dataPipeID)
	}
	if !ok {
		return nil // element left RUN while we were waiting
	}

	c.mu.Lock()
	key := frameKey{parent.ChannelIDInternal, parent.FrameID}
	c.candidates[key] = parent
	c.branches[key] = 1
	ports := append([]int(nil), c.otherPorts...)
	c.mu.Unlock()

	for _, port := range ports {
		sub, ok := el.PopInputData(port, dataPipeID)
		if !ok {
			continue
		}
		subKey := frameKey{sub.ChannelIDInternal, sub.FrameID}
		c.mu.Lock()
		if _, exists := c.branches[subKey]; exists {
			c.branches[subKey]++
		}
		c.mu.Unlock()
	}

	return c.release(el)
}

// release walks candidates in ascending (channel, frame) order,
// emitting and erasing every satisfied head-of-channel frame, stopping
// at the first unsatisfied frame per channel to preserve per-channel
// ordering.
func (c *Converger) release(el *graphrt.Element) *xerr.Error {
	c.mu.Lock()
	byChannel := make(map[int][]frameKey)
	for k := range c.candidates {
		byChannel[k.channel] = append(byChannel[k.channel], k)
	}

	var toEmit []*frame.ObjectMetadata
	for channel, keys := range byChannel {
		sort.Slice(keys, func(i, j int) bool { return keys[i].frameID < keys[j].frameID })
		for _, k := range keys {
			cand := c.candidates[k]
			if c.branches[k] != cand.NumBranches {
				break
			}
			toEmit = append(toEmit, cand)
			delete(c.candidates, k)
			delete(c.branches, k)
		}
		_ = channel
	}
	c.mu.Unlock()

	sort.Slice(toEmit, func(i, j int) bool {
		if toEmit[i].ChannelIDInternal != toEmit[j].ChannelIDInternal {
			return toEmit[i].ChannelIDInternal < toEmit[j].ChannelIDInternal
		}
		return toEmit[i].FrameID < toEmit[j].FrameID
	})

	var first *xerr.Error
	for _, v := range toEmit {
		if err := el.PushOutputData(outputPort, v); err != nil && first == nil {
			first = err
			continue
		}
		if m := el.Metrics(); m != nil {
			m.ConvergerReleasesTotal.WithLabelValues(el.GraphName(), el.Name()).Inc()
		}
	}
	return first
}
