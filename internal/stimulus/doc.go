// Package stimulus implements the deterministic stimulus-frame controller.
//
// A Controller is a pure mapping from (direction, frame index, configuration)
// to a rendered frame plus metadata. It holds no mutable state: the same
// inputs always produce byte-identical frames and identical metadata, which is
// what allows a recorded session to be regenerated and verified later.
//
// Each direction consists of BaselineFrames blank frames followed by Cycles
// sweeps of a bright bar across the visual field:
//
//	LR  left → right   (azimuth  -A → +A)
//	RL  right → left   (azimuth  +A → -A)
//	TB  top → bottom   (altitude +E → -E)
//	BT  bottom → top   (altitude -E → +E)
//
// Completion is a synchronous query (IsDirectionComplete). There is no
// completion event; the capture loop polls after every frame.
//
// Angles are carried as a tri-state Angle value. A missing or failed angle is
// never collapsed to a numeric default.
package stimulus
