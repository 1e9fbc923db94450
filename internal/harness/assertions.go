package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/stimsync/internal/recorder"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// evaluateAssertion checks one assertion against a finished run.
func evaluateAssertion(a Assertion, r *Result) error {
	switch a.Type {
	case AssertMode:
		return assertMode(a, r)
	case AssertDirection:
		return assertDirection(a, r)
	case AssertEventCount:
		return assertEventCount(a, r)
	case AssertLastError:
		if got := errorKind(r.Status.LastError); got != a.Kind {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%q", a.Kind), Actual: fmt.Sprintf("%q", got)}
		}
		return nil
	case AssertSession:
		return assertSession(a, r)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertMode(a Assertion, r *Result) error {
	got := string(r.Status.Mode)
	if got != a.Mode {
		return &AssertionError{Type: a.Type, Expected: a.Mode, Actual: got}
	}
	if a.SubState != "" && string(r.Status.SubState) != a.SubState {
		return &AssertionError{Type: a.Type, Expected: "sub_state " + a.SubState, Actual: "sub_state " + string(r.Status.SubState)}
	}
	return nil
}

// assertDirection matches the saved summary for a.Label. The live status
// is used when no session was saved.
func assertDirection(a Assertion, r *Result) error {
	dirs := r.Status.Directions
	if r.Saved != nil {
		dirs = r.Saved.Directions
	}
	for _, d := range dirs {
		if d.Label == a.Label {
			return matchFields(a.Type+" "+a.Label, summaryFields(d), a.Expect)
		}
	}
	return &AssertionError{Type: a.Type, Expected: "direction " + a.Label, Actual: "no such direction"}
}

func assertEventCount(a Assertion, r *Result) error {
	n := 0
	for _, ev := range r.Events {
		if ev.Kind == a.Event {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s event(s)", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

func assertSession(a Assertion, r *Result) error {
	if r.Saved == nil {
		return &AssertionError{Type: a.Type, Expected: "a saved session", Actual: "none"}
	}
	d := r.Saved
	actual := map[string]any{
		"session_id":           d.SessionID,
		"end_reason":           d.EndReason,
		"frames_per_direction": d.FramesPerDirection,
		"directions":           len(d.Directions),
		"sync_frames":          d.Sync.Frames,
		"late_frames":          d.Sync.LateFrames,
	}
	return matchFields(a.Type, actual, a.Expect)
}

func summaryFields(d recorder.DirectionSummary) map[string]any {
	return map[string]any{
		"label":          d.Label,
		"ordinal":        d.Ordinal,
		"camera_count":   d.CameraCount,
		"stimulus_count": d.StimulusCount,
		"pairs_stored":   d.PairsStored,
		"finalized":      d.Finalized,
		"valid":          d.Valid,
		"invalid_reason": d.InvalidReason,
	}
}

// matchFields checks that every expected field equals the actual one.
// Values are compared by their printed form so YAML ints match Go ints.
func matchFields(what string, actual, expect map[string]any) error {
	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var mismatches []string
	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: unknown field", k))
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(expect[k]) {
			mismatches = append(mismatches, fmt.Sprintf("%s: want %v, got %v", k, expect[k], got))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{Type: what, Expected: "matching fields", Actual: strings.Join(mismatches, "; ")}
	}
	return nil
}
