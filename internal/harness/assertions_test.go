package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stimsync/internal/acquisition"
	"github.com/roach88/stimsync/internal/fault"
	"github.com/roach88/stimsync/internal/recorder"
)

func TestMatchFields(t *testing.T) {
	actual := map[string]any{"valid": true, "pairs_stored": 10, "invalid_reason": ""}

	assert.NoError(t, matchFields("direction LR", actual, map[string]any{"valid": true, "pairs_stored": 10}))

	err := matchFields("direction LR", actual, map[string]any{"pairs_stored": 9, "cycles": 1})
	require.Error(t, err)
	assert.Equal(t, "direction LR: expected matching fields, got cycles: unknown field; pairs_stored: want 9, got 10", err.Error())
}

func TestAssertDirection_PrefersSavedDescriptor(t *testing.T) {
	r := NewResult()
	r.Status.Directions = []recorder.DirectionSummary{{Label: "LR", PairsStored: 3}}
	a := Assertion{Type: AssertDirection, Label: "LR", Expect: map[string]any{"pairs_stored": 3}}

	assert.NoError(t, evaluateAssertion(a, r))

	r.Saved = &recorder.Descriptor{Directions: []recorder.DirectionSummary{{Label: "LR", PairsStored: 10}}}
	assert.Error(t, evaluateAssertion(a, r))

	missing := Assertion{Type: AssertDirection, Label: "TB", Expect: map[string]any{"valid": true}}
	assert.EqualError(t, evaluateAssertion(missing, r), "direction: expected direction TB, got no such direction")
}

func TestAssertEventCount(t *testing.T) {
	r := NewResult()
	r.addEvent(acquisition.Event{Kind: acquisition.EventDirectionComplete, Direction: "LR"})
	r.addEvent(acquisition.Event{Kind: acquisition.EventDirectionComplete, Direction: "RL"})
	r.addEvent(acquisition.Event{Kind: acquisition.EventSessionSaved})

	assert.NoError(t, evaluateAssertion(Assertion{Type: AssertEventCount, Event: "direction_complete", Count: 2}, r))
	assert.Error(t, evaluateAssertion(Assertion{Type: AssertEventCount, Event: "fault", Count: 1}, r))
}

func TestAssertLastError(t *testing.T) {
	r := NewResult()
	assert.NoError(t, evaluateAssertion(Assertion{Type: AssertLastError}, r))

	r.Status.LastError = fault.New(fault.KindRuntimeFault, "capture", "camera capture failed")
	assert.NoError(t, evaluateAssertion(Assertion{Type: AssertLastError, Kind: "RUNTIME_FAULT"}, r))
	assert.Error(t, evaluateAssertion(Assertion{Type: AssertLastError}, r))
}

func TestAssertSession_RequiresSave(t *testing.T) {
	r := NewResult()
	err := evaluateAssertion(Assertion{Type: AssertSession, Expect: map[string]any{"end_reason": "stopped"}}, r)
	assert.EqualError(t, err, "session: expected a saved session, got none")
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", errorKind(nil))
	assert.Equal(t, "BUSY", errorKind(fault.New(fault.KindBusy, "start", "session active")))
	assert.Equal(t, "plain", errorKind(errors.New("plain")))
}
