package stimulus

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// AngleState distinguishes the three forms an angle can take.
type AngleState int

const (
	// AnglePresent carries a measured angle in degrees.
	AnglePresent AngleState = iota + 1
	// AngleError carries the reason an angle could not be computed.
	AngleError
	// AngleNotApplicable marks frames without a meaningful angle (baseline).
	AngleNotApplicable
)

// String returns the persisted name of the state.
func (s AngleState) String() string {
	switch s {
	case AnglePresent:
		return "present"
	case AngleError:
		return "error"
	case AngleNotApplicable:
		return "not_applicable"
	default:
		return fmt.Sprintf("AngleState(%d)", int(s))
	}
}

// ParseAngleState parses a persisted state name.
func ParseAngleState(s string) (AngleState, error) {
	switch s {
	case "present":
		return AnglePresent, nil
	case "error":
		return AngleError, nil
	case "not_applicable":
		return AngleNotApplicable, nil
	default:
		return 0, fmt.Errorf("unknown angle state %q", s)
	}
}

// Angle is a tri-state angle: Present(degrees), Error(reason) or NotApplicable.
// The zero value is invalid; use the constructors.
type Angle struct {
	state  AngleState
	value  float64
	reason string
}

// Present returns an angle with a value in degrees.
func Present(deg float64) Angle {
	return Angle{state: AnglePresent, value: deg}
}

// ErrorAngle returns an angle that could not be computed.
func ErrorAngle(reason string) Angle {
	return Angle{state: AngleError, reason: reason}
}

// NotApplicable returns an angle for frames that have none.
func NotApplicable() Angle {
	return Angle{state: AngleNotApplicable}
}

// State returns the angle's state.
func (a Angle) State() AngleState { return a.state }

// Value returns the angle in degrees and true only when the state is Present.
func (a Angle) Value() (float64, bool) {
	if a.state != AnglePresent {
		return 0, false
	}
	return a.value, true
}

// Reason returns the failure reason for an Error angle.
func (a Angle) Reason() string { return a.reason }

// IsValid reports whether the angle was built by a constructor.
func (a Angle) IsValid() bool {
	return a.state >= AnglePresent && a.state <= AngleNotApplicable
}

// String formats the angle for logs.
func (a Angle) String() string {
	switch a.state {
	case AnglePresent:
		return "Present(" + strconv.FormatFloat(a.value, 'g', -1, 64) + ")"
	case AngleError:
		return "Error(" + a.reason + ")"
	case AngleNotApplicable:
		return "NotApplicable"
	default:
		return "Invalid"
	}
}

// AngleFromParts rebuilds an Angle from its persisted columns.
func AngleFromParts(state string, value float64, hasValue bool, reason string) (Angle, error) {
	s, err := ParseAngleState(state)
	if err != nil {
		return Angle{}, err
	}
	switch s {
	case AnglePresent:
		if !hasValue {
			return Angle{}, fmt.Errorf("present angle without value")
		}
		return Present(value), nil
	case AngleError:
		return ErrorAngle(reason), nil
	default:
		return NotApplicable(), nil
	}
}

type angleJSON struct {
	State  string   `json:"state"`
	Value  *float64 `json:"value,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

// MarshalJSON encodes the angle as {"state": ..., "value"|"reason": ...}.
func (a Angle) MarshalJSON() ([]byte, error) {
	if !a.IsValid() {
		return nil, fmt.Errorf("marshal invalid angle")
	}
	out := angleJSON{State: a.state.String(), Reason: a.reason}
	if a.state == AnglePresent {
		v := a.value
		out.Value = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (a *Angle) UnmarshalJSON(data []byte) error {
	var in angleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var v float64
	if in.Value != nil {
		v = *in.Value
	}
	parsed, err := AngleFromParts(in.State, v, in.Value != nil, in.Reason)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
