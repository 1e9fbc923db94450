package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stimsync/internal/fault"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Success(map[string]int{"frames": 150}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"frames": float64(150)}, resp.Data)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Error(ErrCodeConfiguration, "frame_rate must be positive", map[string]string{"path": "s.cue"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfiguration, resp.Error.Code)
	assert.Equal(t, "frame_rate must be positive", resp.Error.Message)
	assert.Equal(t, map[string]any{"path": "s.cue"}, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Error(ErrCodeIntegrity, "frame count mismatch", "LR"))
	assert.Equal(t, "Error [E300]: frame count mismatch\n", buf.String())

	buf.Reset()
	f.Verbose = true
	require.NoError(t, f.Error(ErrCodeIntegrity, "frame count mismatch", "LR"))
	assert.Contains(t, buf.String(), "Details: LR")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut}

	f.VerboseLog("direction %s complete", "LR")
	assert.Empty(t, errOut.String())

	f.Verbose = true
	f.VerboseLog("direction %s complete", "LR")
	assert.Empty(t, out.String(), "verbose output must not corrupt JSON on stdout")
	assert.Equal(t, "direction LR complete\n", errOut.String())
}

func TestCLIResponse_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(CLIResponse{Status: "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	data, err = json.Marshal(CLIResponse{Status: "ok", SessionID: "s-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","session_id":"s-1"}`, string(data))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "no session")))

	wrapped := fmt.Errorf("run: %w", WrapExitError(ExitCommandError, "open", errors.New("missing")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "no session", NewExitError(ExitFailure, "no session").Error())

	cause := errors.New("missing")
	err := WrapExitError(ExitCommandError, "open", cause)
	assert.Equal(t, "open: missing", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestErrorCode_FaultKinds(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fault.New(fault.KindConfiguration, "start", "no camera"), ErrCodeConfiguration},
		{fault.New(fault.KindRuntimeFault, "capture", "hardware"), ErrCodeRuntimeFault},
		{fault.New(fault.KindIntegrity, "finalize", "mismatch"), ErrCodeIntegrity},
		{fault.New(fault.KindPersistence, "save", "disk full"), ErrCodePersistence},
		{fault.New(fault.KindInvalidTransition, "set_mode", "busy"), ErrCodeTransition},
		{fault.New(fault.KindBusy, "start", "active"), ErrCodeTransition},
		{errors.New("plain"), ErrCodeGeneric},
		{errors.Join(
			fault.New(fault.KindRuntimeFault, "capture", "hardware"),
			fault.New(fault.KindPersistence, "save", "directory exists"),
		), ErrCodePersistence},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, errorCode(tt.err))
		})
	}
}
