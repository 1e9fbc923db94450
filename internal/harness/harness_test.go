package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result := RunWithGolden(t, scenario, t.TempDir())
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_StopMidDirection(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/stop_mid_direction.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Steps, 3)
	assert.Equal(t, StepRecord{Index: 0, Action: "start", Mode: "recording"}, result.Steps[0])
	assert.Equal(t, StepRecord{Index: 1, Action: "advance"}, result.Steps[1])
	assert.Equal(t, StepRecord{Index: 2, Action: "stop", Mode: "idle"}, result.Steps[2])

	require.NotNil(t, result.Saved)
	assert.Equal(t, "test-session-1", result.Saved.SessionID)
	assert.Equal(t, 14, result.Presented)
}

func TestRun_UnexpectedErrorFailsScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "stop without a session",
		Config:      smallConfig,
		Flow:        []Step{{Action: ActionStop}},
	}

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `expected error "", got "INVALID_TRANSITION"`)
}

func TestRun_FailedAssertion(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_mode",
		Description: "asserts the wrong final mode",
		Config:      smallConfig,
		Flow:        []Step{{Action: ActionSetMode, Mode: "preview"}},
		Assertions:  []Assertion{{Type: AssertMode, Mode: "idle"}},
	}

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "mode: expected idle, got preview")
}

func TestRun_InvalidConfig(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_config",
		Description: "config fails schema",
		Config:      "frame_rate: 0",
		Flow:        []Step{{Action: ActionStart}},
	}

	_, err := Run(context.Background(), scenario, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad_config")
}

func TestRun_AdvanceWithoutLoop(t *testing.T) {
	scenario := &Scenario{
		Name:        "no_loop",
		Description: "advance while idle cannot make progress",
		Config:      smallConfig,
		Flow:        []Step{{Action: ActionAdvance, Frames: 1}},
	}

	_, err := Run(context.Background(), scenario, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not take tick 1 of 1")
}

const smallConfig = `
frame_rate: 10
directions: ["LR"]
direction_duration_s: 1
stop_timeout_s: 1
stimulus: { width_px: 16, height_px: 12, bar_width_px: 2 }
`
