package harness

import (
	"github.com/roach88/stimsync/internal/acquisition"
	"github.com/roach88/stimsync/internal/recorder"
)

// StepRecord is the observed outcome of one flow step.
type StepRecord struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
	// Mode is the manager mode right after the step. It is left empty
	// after advance, where the loop may still be mid-iteration.
	Mode string `json:"mode,omitempty"`
	// Error is the fault kind the step failed with.
	Error string `json:"error,omitempty"`
}

// EventRecord is one manager event, reduced to deterministic fields.
type EventRecord struct {
	Kind      string `json:"kind"`
	SessionID string `json:"session_id,omitempty"`
	Direction string `json:"direction,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Steps  []StepRecord  `json:"steps"`
	Events []EventRecord `json:"events"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Presented counts frames handed to the display.
	Presented int `json:"presented"`

	// Status is the manager status after the flow.
	Status acquisition.Status `json:"-"`

	// Saved is the last saved session's descriptor, if any.
	Saved *recorder.Descriptor `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepRecord{},
		Events: []EventRecord{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addStep(index int, action, mode, errKind string) {
	r.Steps = append(r.Steps, StepRecord{Index: index, Action: action, Mode: mode, Error: errKind})
}

func (r *Result) addEvent(ev acquisition.Event) {
	r.Events = append(r.Events, EventRecord{
		Kind:      string(ev.Kind),
		SessionID: ev.SessionID,
		Direction: ev.Direction,
		Error:     errorKind(ev.Err),
	})
}
