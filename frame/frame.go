// Package frame defines ObjectMetadata, the unit of work carried through
// a graph: a frame from one logical channel, its detections, optional
// tracking result, and the bookkeeping a Distributer/Converger pair
// needs to fan a frame out and rejoin it.
package frame

// BoundingBox is a detection's axis-aligned box in the source frame's
// coordinate space.
type BoundingBox struct {
	X, Y, W, H float32
}

// DetectedObject is one sub-detection surfaced by an algorithm element.
type DetectedObject struct {
	Box        BoundingBox
	ClassID    int
	ClassName  string
	Confidence float32
}

// TrackedObject is the result of a tracking element, attached to an
// ObjectMetadata once a tracker has run.
type TrackedObject struct {
	TrackID int64
}

// ObjectMetadata is the payload that flows across Connectors. ChannelID
// is the external/logical stream identifier (e.g. a camera name);
// ChannelIDInternal is the graph-assigned integer used for lane routing
// and as the Converger join key. Every component in this module MUST
// canonicalize joins on ChannelIDInternal, never ChannelID.
type ObjectMetadata struct {
	ChannelID         string
	ChannelIDInternal int
	FrameID           uint64
	EOS               bool

	// Payload is an opaque device buffer or similar; the runtime never
	// inspects it.
	Payload any

	Detections []*DetectedObject
	Tracked    *TrackedObject

	// NumBranches is the join count a Converger waits for. Set by a
	// Distributer on the parent after its branches are emitted and
	// before the parent itself is emitted on default_port.
	NumBranches int

	// Parent points at the frame this one was split from, for
	// sub-ObjectMetadata produced by a Distributer route. Never set on
	// a top-level frame. Children never hold a strong reference beyond
	// this single pointer, so chains cannot cycle.
	Parent *ObjectMetadata
}

// New builds a top-level ObjectMetadata for channelIDInternal/frameID.
func New(channelID string, channelIDInternal int, frameID uint64) *ObjectMetadata {
	return &ObjectMetadata{
		ChannelID:         channelID,
		ChannelIDInternal: channelIDInternal,
		FrameID:           frameID,
		NumBranches:       1,
	}
}

// EOSFrame builds an end-of-stream marker for a channel. EOS frames
// always carry NumBranches == 1 (spec: propagate on default_port only).
func EOSFrame(channelID string, channelIDInternal int, frameID uint64) *ObjectMetadata {
	m := New(channelID, channelIDInternal, frameID)
	m.EOS = true
	return m
}

// SubFrame builds a branch sub-ObjectMetadata referencing parent and
// carrying exactly one matched detection, as a Distributer route emits.
func SubFrame(parent *ObjectMetadata, det *DetectedObject) *ObjectMetadata {
	return &ObjectMetadata{
		ChannelID:         parent.ChannelID,
		ChannelIDInternal: parent.ChannelIDInternal,
		FrameID:           parent.FrameID,
		Detections:        []*DetectedObject{det},
		Parent:            parent,
		NumBranches:       1,
	}
}

// Key returns the (channel, frame) join key used by the Converger.
func (m *ObjectMetadata) Key() (channelIDInternal int, frameID uint64) {
	return m.ChannelIDInternal, m.FrameID
}
