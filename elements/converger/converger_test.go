package converger_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sophon-stream/graphrt"
	_ "github.com/sophon-stream/graphrt/builtin"
	"github.com/sophon-stream/graphrt/config"
	"github.com/sophon-stream/graphrt/frame"
	"github.com/sophon-stream/graphrt/xerr"
)

// passThrough copies input port 0 to output port 0, standing in for a
// real source/sink/algorithm element the way stream_test.go's
// dummyProcessor closures stand in for teacher Processors.
type passThrough struct{ delay time.Duration }

func (passThrough) InitInternal(config.Config) *xerr.Error { return nil }
func (passThrough) UninitInternal()                        {}
func (p passThrough) DoWork(el *graphrt.Element, dataPipeID int) *xerr.Error {
	v, ok := el.PopInputData(0, dataPipeID)
	if !ok {
		time.Sleep(graphrt.PollInterval)
		return nil
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return el.PushOutputData(0, v)
}

func init() {
	graphrt.Register("test.source", func() graphrt.Worker { return passThrough{} })
	graphrt.Register("test.sink", func() graphrt.Worker { return passThrough{} })
	graphrt.Register("test.delayed_branch", func() graphrt.Worker { return passThrough{delay: 50 * time.Millisecond} })
}

// fanOutGraphJSON wires a source into a Distributer (default_port=0,
// one "car" route on port 1 with the given rate limit) and both the
// default and route ports into a Converger feeding a sink — the exact
// wiring boundary scenarios 2/3/6 in spec §8 describe. When delayBranch
// is true, the route path runs through test.delayed_branch first.
func fanOutGraphJSON(interval float64, delayBranch bool) []byte {
	branchType := "test.sink"
	if delayBranch {
		branchType = "test.delayed_branch"
	}

	elements := []map[string]interface{}{
		{"id": 1, "name": "src", "type": "test.source", "thread_number": 1, "is_source": true},
		{"id": 2, "name": "dist", "type": "distributer", "thread_number": 1,
			"configure": map[string]interface{}{
				"default_port": 0,
				"routes": []map[string]interface{}{
					{"port": 1, "classes": []string{"car"}, "interval": interval},
				},
			}},
		{"id": 3, "name": "conv", "type": "converger", "thread_number": 1,
			"configure": map[string]interface{}{"default_port": 0}},
		{"id": 4, "name": "sink", "type": "test.sink", "thread_number": 1, "is_sink": true},
	}
	connections := []map[string]interface{}{
		{"src_id": 1, "src_port": 0, "dst_id": 2, "dst_port": 0},
		{"src_id": 2, "src_port": 0, "dst_id": 3, "dst_port": 0, "queue_size": 256},
		{"src_id": 2, "src_port": 1, "dst_id": 3, "dst_port": 1, "queue_size": 256},
		{"src_id": 3, "src_port": 0, "dst_id": 4, "dst_port": 0},
	}

	if delayBranch {
		// splice a pass-through delay element between dist's route port
		// and conv's branch port.
		elements = append(elements, map[string]interface{}{
			"id": 5, "name": "delay", "type": branchType, "thread_number": 1,
		})
		connections[2] = map[string]interface{}{"src_id": 2, "src_port": 1, "dst_id": 5, "dst_port": 0, "queue_size": 256}
		connections = append(connections, map[string]interface{}{"src_id": 5, "src_port": 0, "dst_id": 3, "dst_port": 1, "queue_size": 256})
	}

	doc := map[string]interface{}{
		"graph_id":    10,
		"elements":    elements,
		"connections": connections,
	}
	raw, _ := json.Marshal(doc)
	return raw
}

type sinkCollector struct {
	mu       sync.Mutex
	received []*frame.ObjectMetadata
}

func (c *sinkCollector) handle(v *frame.ObjectMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, v)
}

func (c *sinkCollector) snapshot() []*frame.ObjectMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*frame.ObjectMetadata(nil), c.received...)
}

// TestConvergerJoinsDistributerFanOut covers boundary scenario 2: a
// single frame with two detections ([car, person]) must be released by
// the Converger exactly once, with numBranches == 2 (the default branch
// plus the one route that matched "car").
func TestConvergerJoinsDistributerFanOut(t *testing.T) {
	e := graphrt.NewEngine(nil)
	id, err := e.AddGraph(fanOutGraphJSON(0, false))
	require.Nil(t, err)
	defer e.RemoveGraph(id)

	collector := &sinkCollector{}
	require.Nil(t, e.SetSinkHandler(id, 4, 0, collector.handle))

	parent := frame.New("cam0", 0, 0)
	parent.Detections = []*frame.DetectedObject{
		{ClassName: "car"},
		{ClassName: "person"},
	}
	require.Nil(t, e.PushSourceData(id, 1, 0, parent))

	require.Eventually(t, func() bool { return len(collector.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	received := collector.snapshot()
	assert.Equal(t, 2, received[0].NumBranches)
}

// TestConvergerOrderingUnderDelayedFanOut covers boundary scenario 3:
// with the branch path delayed, the Converger must still release frames
// in strict input order.
func TestConvergerOrderingUnderDelayedFanOut(t *testing.T) {
	e := graphrt.NewEngine(nil)
	id, err := e.AddGraph(fanOutGraphJSON(0, true))
	require.Nil(t, err)
	defer e.RemoveGraph(id)

	collector := &sinkCollector{}
	require.Nil(t, e.SetSinkHandler(id, 4, 0, collector.handle))

	const n = 5
	for i := 0; i < n; i++ {
		parent := frame.New("cam0", 0, uint64(i))
		parent.Detections = []*frame.DetectedObject{{ClassName: "car"}}
		require.Nil(t, e.PushSourceData(id, 1, 0, parent))
	}

	require.Eventually(t, func() bool { return len(collector.snapshot()) == n }, 3*time.Second, 10*time.Millisecond)

	received := collector.snapshot()
	for i := 0; i < n; i++ {
		assert.Equal(t, uint64(i), received[i].FrameID)
	}
}

// TestConvergerRateLimitedRoute covers boundary scenario 6: at
// interval=1s with 100 frames 10ms apart, only a couple frames may take
// the rate-limited branch, but every frame must reach the sink via
// default_port regardless.
func TestConvergerRateLimitedRoute(t *testing.T) {
	e := graphrt.NewEngine(nil)
	id, err := e.AddGraph(fanOutGraphJSON(1.0, false))
	require.Nil(t, err)
	defer e.RemoveGraph(id)

	collector := &sinkCollector{}
	require.Nil(t, e.SetSinkHandler(id, 4, 0, collector.handle))

	const n = 100
	for i := 0; i < n; i++ {
		parent := frame.New("cam0", 0, uint64(i))
		parent.Detections = []*frame.DetectedObject{{ClassName: "car"}}
		require.Nil(t, e.PushSourceData(id, 1, 0, parent))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(collector.snapshot()) == n }, 5*time.Second, 10*time.Millisecond)
}
