package recorder

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/stimsync/internal/camera"
	"github.com/roach88/stimsync/internal/config"
	"github.com/roach88/stimsync/internal/fault"
	"github.com/roach88/stimsync/internal/stimulus"
)

// Pair is one camera capture and the stimulus frame generated for it.
// The camera timestamp is the timestamp of both halves.
type Pair struct {
	Camera   camera.CapturedFrame
	Stimulus stimulus.Metadata
	Seq      int64
}

// TimestampUS returns the shared capture timestamp.
func (p Pair) TimestampUS() int64 {
	return p.Camera.TimestampUS
}

// DirectionSummary describes the recorded state of one direction.
type DirectionSummary struct {
	Label         string `json:"label" yaml:"label"`
	Ordinal       int    `json:"ordinal" yaml:"ordinal"`
	CameraCount   int    `json:"camera_count" yaml:"camera_count"`
	StimulusCount int    `json:"stimulus_count" yaml:"stimulus_count"`
	PairsStored   int    `json:"pairs_stored" yaml:"pairs_stored"`
	Finalized     bool   `json:"finalized" yaml:"finalized"`
	Valid         bool   `json:"valid" yaml:"valid"`
	InvalidReason string `json:"invalid_reason,omitempty" yaml:"invalid_reason,omitempty"`
}

type direction struct {
	label     string
	ordinal   int
	pairs     []Pair
	orphans   []camera.CapturedFrame
	lastIndex int
	finalized bool
	valid     bool
	reason    string
}

func (d *direction) summary() DirectionSummary {
	return DirectionSummary{
		Label:         d.label,
		Ordinal:       d.ordinal,
		CameraCount:   len(d.pairs) + len(d.orphans),
		StimulusCount: len(d.pairs),
		Finalized:     d.finalized,
		Valid:         d.valid,
		InvalidReason: d.reason,
	}
}

// Recorder is the per-session store of frame pairs.
type Recorder struct {
	mu sync.Mutex

	cfg        *config.Config
	sessionID  string
	root       string
	startedAt  time.Time
	framesPerD int

	clock *Clock
	quota *capacity
	order []*direction
	dirs  map[string]*direction
	saved bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithStartedAt sets the session start time written to the descriptor.
// Default: time.Now() at construction.
func WithStartedAt(t time.Time) Option {
	return func(r *Recorder) {
		r.startedAt = t
	}
}

// New creates a recorder for one session. Sessions are saved under
// root/sessionID.
//
// Returns a configuration fault if cfg is nil or invalid, or if sessionID or
// root is empty.
func New(cfg *config.Config, sessionID, root string, opts ...Option) (*Recorder, error) {
	const op = "new_recorder"
	if cfg == nil {
		return nil, fault.New(fault.KindConfiguration, op, "no configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, op, "invalid configuration", err)
	}
	if sessionID == "" {
		return nil, fault.New(fault.KindConfiguration, op, "empty session id")
	}
	if root == "" {
		return nil, fault.New(fault.KindConfiguration, op, "no output directory configured")
	}

	r := &Recorder{
		cfg:        cfg,
		sessionID:  sessionID,
		root:       root,
		startedAt:  time.Now().UTC(),
		framesPerD: cfg.FramesPerDirection(),
		clock:      NewClock(),
		quota:      newCapacity(cfg.Recorder.MaxPendingRecords),
		dirs:       make(map[string]*direction),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dir returns the final session directory (root/sessionID).
func (r *Recorder) Dir() string {
	return sessionDir(r.root, r.sessionID)
}

// direction returns the state for label, registering it in acquisition order
// on first use. Caller must hold r.mu.
func (r *Recorder) direction(label string) *direction {
	d, ok := r.dirs[label]
	if !ok {
		d = &direction{label: label, ordinal: len(r.order), lastIndex: -1}
		r.dirs[label] = d
		r.order = append(r.order, d)
	}
	return d
}

// Append adds a frame pair to its direction and returns the stamped record.
//
// Fails with IntegrityViolation if the pair is malformed, out of order, or
// targets a finalized direction, and with RuntimeFault when the capacity
// bound is reached.
func (r *Recorder) Append(cam camera.CapturedFrame, meta stimulus.Metadata) (Pair, error) {
	const op = "append"
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saved {
		return Pair{}, fault.New(fault.KindIntegrity, op, "session already saved")
	}
	if meta.CameraFrameIndex != cam.Index {
		return Pair{}, &fault.Error{
			Kind: fault.KindIntegrity, Op: op, Direction: meta.Direction,
			Message: fmt.Sprintf("stimulus camera index %d != captured index %d", meta.CameraFrameIndex, cam.Index),
		}
	}

	d := r.direction(meta.Direction)
	if d.finalized {
		return Pair{}, &fault.Error{Kind: fault.KindIntegrity, Op: op, Direction: d.label, Message: "direction already finalized"}
	}
	if meta.FrameIndex <= d.lastIndex {
		return Pair{}, &fault.Error{
			Kind: fault.KindIntegrity, Op: op, Direction: d.label,
			Message: fmt.Sprintf("frame index %d not after %d", meta.FrameIndex, d.lastIndex),
		}
	}
	if err := r.quota.reserve(); err != nil {
		return Pair{}, &fault.Error{Kind: fault.KindRuntimeFault, Op: op, Direction: d.label, Message: "back-pressure", Err: err}
	}

	p := Pair{Camera: cam, Stimulus: meta, Seq: r.clock.Next()}
	d.pairs = append(d.pairs, p)
	d.lastIndex = meta.FrameIndex
	return p, nil
}

// AppendOrphan records a captured frame that has no stimulus partner, for
// example when stimulus generation failed for it. The direction's camera
// count then exceeds its stimulus count.
func (r *Recorder) AppendOrphan(label string, cam camera.CapturedFrame) error {
	const op = "append_orphan"
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saved {
		return fault.New(fault.KindIntegrity, op, "session already saved")
	}
	d := r.direction(label)
	if d.finalized {
		return &fault.Error{Kind: fault.KindIntegrity, Op: op, Direction: label, Message: "direction already finalized"}
	}
	if err := r.quota.reserve(); err != nil {
		return &fault.Error{Kind: fault.KindRuntimeFault, Op: op, Direction: label, Message: "back-pressure", Err: err}
	}
	d.orphans = append(d.orphans, cam)
	return nil
}

// Counts returns the camera and stimulus record counts of a direction.
func (r *Recorder) Counts(label string) (cameraCount, stimulusCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.dirs[label]
	if !ok {
		return 0, 0
	}
	return len(d.pairs) + len(d.orphans), len(d.pairs)
}

// Pairs returns a copy of the pairs recorded for a direction.
func (r *Recorder) Pairs(label string) []Pair {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.dirs[label]
	if !ok {
		return nil
	}
	return append([]Pair(nil), d.pairs...)
}

// Snapshot returns summaries of all directions seen so far, in acquisition order.
func (r *Recorder) Snapshot() []DirectionSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DirectionSummary, len(r.order))
	for i, d := range r.order {
		out[i] = d.summary()
	}
	return out
}

// pending returns the number of records held in memory.
func (r *Recorder) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quota.used()
}

// FinalizeDirection closes a direction to further records and decides its
// validity. A non-empty abortReason marks the direction invalid regardless
// of counts.
//
// Returns an IntegrityViolation fault when the direction is invalid; the
// direction stays recorded and the session continues. Finalizing twice
// returns the first outcome.
func (r *Recorder) FinalizeDirection(label, abortReason string) (DirectionSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalizeLocked(r.direction(label), abortReason)
}

func (r *Recorder) finalizeLocked(d *direction, abortReason string) (DirectionSummary, error) {
	if !d.finalized {
		d.finalized = true
		d.valid, d.reason = r.judge(d, abortReason)
		if d.valid {
			slog.Info("direction finalized",
				"session_id", r.sessionID,
				"direction", d.label,
				"pairs", len(d.pairs),
			)
		} else {
			slog.Error("direction invalid",
				"session_id", r.sessionID,
				"direction", d.label,
				"camera_count", len(d.pairs)+len(d.orphans),
				"stimulus_count", len(d.pairs),
				"reason", d.reason,
			)
		}
	}

	s := d.summary()
	if !d.valid {
		return s, &fault.Error{Kind: fault.KindIntegrity, Op: "finalize_direction", Direction: d.label, Message: d.reason}
	}
	return s, nil
}

// judge decides validity. Caller must hold r.mu.
func (r *Recorder) judge(d *direction, abortReason string) (bool, string) {
	cameraCount, stimulusCount := len(d.pairs)+len(d.orphans), len(d.pairs)
	switch {
	case cameraCount != stimulusCount:
		return false, fmt.Sprintf("frame count mismatch: camera=%d stimulus=%d", cameraCount, stimulusCount)
	case abortReason != "":
		return false, fmt.Sprintf("aborted: %s", abortReason)
	case stimulusCount != r.framesPerD:
		return false, fmt.Sprintf("incomplete: %d of %d frames", stimulusCount, r.framesPerD)
	case !d.pairs[len(d.pairs)-1].Stimulus.Complete:
		return false, "last frame not marked complete"
	}
	return true, ""
}
