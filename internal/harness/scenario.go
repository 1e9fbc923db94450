package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stimsync/internal/acquisition"
	"github.com/roach88/stimsync/internal/fault"
)

// Scenario defines one acquisition scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is CUE configuration source, unified with the config schema.
	Config string `yaml:"config"`

	// Camera tunes the simulated camera.
	Camera CameraSpec `yaml:"camera,omitempty"`

	// Stimulus injects generator failures.
	Stimulus StimulusSpec `yaml:"stimulus,omitempty"`

	// Flow is executed in order; a step whose outcome differs from its
	// expectation fails the scenario.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final status and saved session.
	Assertions []Assertion `yaml:"assertions"`
}

// CameraSpec configures the simulated camera.
type CameraSpec struct {
	// FailAfter makes every capture after this many fail. Zero disables.
	FailAfter int `yaml:"fail_after,omitempty"`
}

// StimulusSpec configures the stimulus generator.
type StimulusSpec struct {
	FailGeneration *FailAt `yaml:"fail_generation,omitempty"`
}

// FailAt names the frame whose generation fails.
type FailAt struct {
	Direction string `yaml:"direction"`
	Frame     int    `yaml:"frame"`
}

// Step is one manager interaction.
type Step struct {
	Action string `yaml:"action"`

	// Mode is the target of set_mode.
	Mode string `yaml:"mode,omitempty"`

	// Frames is the number of pacer ticks for advance.
	Frames int `yaml:"frames,omitempty"`

	// Event is the event kind awaited by wait.
	Event string `yaml:"event,omitempty"`

	// ExpectError is the fault kind the step must fail with. Empty means
	// the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step actions.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionSetMode = "set_mode"
	ActionAdvance = "advance"
	ActionWait    = "wait"
)

// Assertion validates the final state of a scenario.
type Assertion struct {
	Type string `yaml:"type"`

	// Mode and SubState are used by mode.
	Mode     string `yaml:"mode,omitempty"`
	SubState string `yaml:"sub_state,omitempty"`

	// Label is the direction checked by direction.
	Label string `yaml:"label,omitempty"`

	// Expect holds expected fields for direction and session (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Event and Count are used by event_count.
	Event string `yaml:"event,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Kind is the fault kind checked by last_error.
	Kind string `yaml:"kind,omitempty"`
}

// Assertion type constants.
const (
	AssertMode       = "mode"
	AssertDirection  = "direction"
	AssertEventCount = "event_count"
	AssertLastError  = "last_error"
	AssertSession    = "session"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Config == "" {
		return fmt.Errorf("config is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

var faultKinds = map[string]bool{
	string(fault.KindConfiguration):     true,
	string(fault.KindRuntimeFault):      true,
	string(fault.KindIntegrity):         true,
	string(fault.KindPersistence):       true,
	string(fault.KindInvalidTransition): true,
	string(fault.KindBusy):              true,
}

func validateStep(step Step) error {
	switch step.Action {
	case ActionStart, ActionStop:
	case ActionSetMode:
		if _, err := acquisition.ParseMode(step.Mode); err != nil {
			return err
		}
	case ActionAdvance:
		if step.Frames < 1 {
			return fmt.Errorf("advance requires frames >= 1")
		}
	case ActionWait:
		if step.Event == "" {
			return fmt.Errorf("wait requires event")
		}
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	if step.ExpectError != "" && !faultKinds[step.ExpectError] {
		return fmt.Errorf("unknown fault kind %q", step.ExpectError)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertMode:
		if _, err := acquisition.ParseMode(a.Mode); err != nil {
			return err
		}
	case AssertDirection:
		if a.Label == "" {
			return fmt.Errorf("direction assertion requires label")
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("event_count assertion requires event")
		}
	case AssertLastError:
		if a.Kind != "" && !faultKinds[a.Kind] {
			return fmt.Errorf("unknown fault kind %q", a.Kind)
		}
	case AssertSession:
		if len(a.Expect) == 0 {
			return fmt.Errorf("session assertion requires expect")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
