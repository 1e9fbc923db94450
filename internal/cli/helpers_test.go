package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stimsync/internal/testutil"
)

// executeCommand runs the root command with args and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// writeConfig writes src to a .cue file in a temp directory.
func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// response mirrors CLIResponse with a typed payload.
type response[T any] struct {
	Status    string    `json:"status"`
	Data      T         `json:"data"`
	Error     *CLIError `json:"error"`
	SessionID string    `json:"session_id"`
}

func decodeResponse[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

// acquireSmallSession records a SmallConfigSource session and returns its directory.
func acquireSmallSession(t *testing.T) string {
	t.Helper()

	out, err := executeCommand(t, "acquire",
		"--config", writeConfig(t, testutil.SmallConfigSource),
		"--output", t.TempDir(),
		"--format", "json",
	)
	require.NoError(t, err, "output: %s", out)

	resp := decodeResponse[AcquireResult](t, out)
	require.Equal(t, "ok", resp.Status)
	require.NotEmpty(t, resp.Data.Dir)
	return resp.Data.Dir
}
