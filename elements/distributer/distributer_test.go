package distributer_test

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

type passThrough struct{}

func (passThrough) InitInternal(config.Config) *xerr.Error { return nil }
func (passThrough) UninitInternal()                        {}
func (passThrough) DoWork(el *graphrt.Element, dataPipeID int) *xerr.Error {
	v, ok := el.PopInputData(0, dataPipeID)
	if !ok {
		time.Sleep(graphrt.PollInterval)
		return nil
	}
	return el.PushOutputData(0, v)
}

func init() {
	graphrt.Register("test.dist_source", func() graphrt.Worker { return passThrough{} })
	graphrt.Register("test.dist_sink", func() graphrt.Worker { return passThrough{} })
}

// distributerGraphJSON wires a source straight into a Distributer with
// two routes (car, truck) and two independent sinks collecting
// default_port and the car route's port, so the two output streams can
// be asserted on independently.
func distributerGraphJSON() []byte {
	doc := map[string]interface{}{
		"graph_id": 20,
		"elements": []map[string]interface{}{
			{"id": 1, "name": "src", "type": "test.dist_source", "thread_number": 1, "is_source": true},
			{"id": 2, "name": "dist", "type": "distributer", "thread_number": 1,
				"configure": map[string]interface{}{
					"default_port": 0,
					"routes": []map[string]interface{}{
						{"port": 1, "classes": []string{"car"}, "interval": 0},
						{"port": 2, "classes": []string{"truck"}, "interval": 0},
					},
				}},
			{"id": 3, "name": "default_sink", "type": "test.dist_sink", "thread_number": 1, "is_sink": true},
			{"id": 4, "name": "car_sink", "type": "test.dist_sink", "thread_number": 1, "is_sink": true},
		},
		"connections": []map[string]interface{}{
			{"src_id": 1, "src_port": 0, "dst_id": 2, "dst_port": 0},
			{"src_id": 2, "src_port": 0, "dst_id": 3, "dst_port": 0},
			{"src_id": 2, "src_port": 1, "dst_id": 4, "dst_port": 0},
		},
	}
	raw, _ := json.Marshal(doc)
	return raw
}

type collector struct {
	mu  sync.Mutex
	got []*frame.ObjectMetadata
}

func (c *collector) handle(v *frame.ObjectMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, v)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

// TestDistributerFansOutMatchingRouteOnly covers spec §4.6: the default
// port always receives the unmodified frame, and only the route whose
// class set matches a detection present on the frame emits a sub-frame
// (here: "car" matches, "truck" never does, and the unconfigured
// "person" detection has no route at all).
func TestDistributerFansOutMatchingRouteOnly(t *testing.T) {
	e := graphrt.NewEngine(nil)
	id, err := e.AddGraph(distributerGraphJSON())
	require.Nil(t, err)
	defer e.RemoveGraph(id)

	def := &collector{}
	car := &collector{}
	require.Nil(t, e.SetSinkHandler(id, 3, 0, def.handle))
	require.Nil(t, e.SetSinkHandler(id, 4, 0, car.handle))

	parent := frame.New("cam0", 0, 0)
	parent.Detections = []*frame.DetectedObject{
		{ClassName: "car"},
		{ClassName: "person"},
	}
	require.Nil(t, e.PushSourceData(id, 1, 0, parent))

	require.Eventually(t, func() bool { return def.len() == 1 && car.len() == 1 }, 2*time.Second, 5*time.Millisecond)

	defFrame := def.got[0]
	assert.Equal(t, 2, defFrame.NumBranches) // default + the one matching route
	assert.Len(t, defFrame.Detections, 2)    // default_port carries the whole parent, unmodified

	carFrame := car.got[0]
	assert.Len(t, carFrame.Detections, 1)
	assert.Equal(t, "car", carFrame.Detections[0].ClassName)
}

// TestDistributerEOSPropagatesDefaultPortOnly covers spec §4.6 step 3:
// an end-of-stream frame must only ever cross default_port, carrying
// NumBranches == 1 regardless of configured routes.
func TestDistributerEOSPropagatesDefaultPortOnly(t *testing.T) {
	e := graphrt.NewEngine(nil)
	id, err := e.AddGraph(distributerGraphJSON())
	require.Nil(t, err)
	defer e.RemoveGraph(id)

	def := &collector{}
	car := &collector{}
	require.Nil(t, e.SetSinkHandler(id, 3, 0, def.handle))
	require.Nil(t, e.SetSinkHandler(id, 4, 0, car.handle))

	require.Nil(t, e.PushSourceData(id, 1, 0, frame.EOSFrame("cam0", 0, 0)))

	require.Eventually(t, func() bool { return def.len() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond) // give the (absent) route emission a chance to show up if it were wrongly sent

	assert.Equal(t, 1, def.got[0].NumBranches)
	assert.True(t, def.got[0].EOS)
	assert.Equal(t, 0, car.len())
}
