package acquisition

import (
	"fmt"
	"time"

	"github.com/roach88/stimsync/internal/recorder"
	"github.com/roach88/stimsync/internal/synctrack"
)

// Mode is the manager's top-level state.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModePreview   Mode = "preview"
	ModeRecording Mode = "recording"
	ModePlayback  Mode = "playback"
	ModeStopping  Mode = "stopping"
	ModeError     Mode = "error"
)

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeIdle, ModePreview, ModeRecording, ModePlayback, ModeStopping, ModeError:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// SubState refines Preview, Recording and Playback. Idle, Stopping and
// Error have no sub-state.
type SubState string

const (
	SubStateNone    SubState = ""
	SubStateRunning SubState = "running"
	SubStateDone    SubState = "done"
	SubStateFailed  SubState = "failed"
)

// terminal reports whether a new mode may be entered from this sub-state.
func (s SubState) terminal() bool {
	return s == SubStateDone || s == SubStateFailed
}

// Status is a point-in-time snapshot of the manager.
type Status struct {
	Mode               Mode                        `json:"mode"`
	SubState           SubState                    `json:"sub_state,omitempty"`
	SessionID          string                      `json:"session_id,omitempty"`
	Direction          string                      `json:"direction,omitempty"`
	Cycle              int                         `json:"cycle"`
	FramesCaptured     uint64                      `json:"frames_captured"`
	FramesPresented    int                         `json:"frames_presented"`
	FramesPerDirection int                         `json:"frames_per_direction,omitempty"`
	StartedAt          time.Time                   `json:"started_at,omitempty"`
	Directions         []recorder.DirectionSummary `json:"directions,omitempty"`
	Sync               synctrack.Stats             `json:"sync"`
	LastSave           *recorder.SaveResult        `json:"last_save,omitempty"`
	LastError          error                       `json:"-"`
}

// EventKind identifies an asynchronous manager event.
type EventKind string

const (
	EventDirectionComplete EventKind = "direction_complete"
	EventSessionSaved      EventKind = "session_saved"
	EventFault             EventKind = "fault"
	EventPlaybackDone      EventKind = "playback_done"
)

// Event reports something that happened outside a caller's request, such
// as natural session completion or a loop fault.
type Event struct {
	Kind      EventKind
	SessionID string
	Direction string
	Save      *recorder.SaveResult
	Err       error
}
