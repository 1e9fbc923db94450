package recorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stimsync/internal/camera"
	"github.com/roach88/stimsync/internal/config"
	"github.com/roach88/stimsync/internal/stimulus"
	"github.com/roach88/stimsync/internal/testutil"
)

var testStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// newTestRecorder creates a recorder writing under a temp dir.
func newTestRecorder(t *testing.T, cfg *config.Config) *Recorder {
	t.Helper()
	r, err := New(cfg, "session-1", t.TempDir(), WithStartedAt(testStart))
	require.NoError(t, err)
	return r
}

// recorderFeed generates pairs the way the capture loop does.
type recorderFeed struct {
	t    *testing.T
	ctrl *stimulus.Controller
	cam  uint64
}

func newFeed(t *testing.T, cfg *config.Config) *recorderFeed {
	t.Helper()
	ctrl, err := stimulus.New(cfg)
	require.NoError(t, err)
	return &recorderFeed{t: t, ctrl: ctrl}
}

// next returns the captured frame and stimulus metadata for (direction, index).
func (f *recorderFeed) next(direction string, index int) (camera.CapturedFrame, stimulus.Metadata) {
	f.t.Helper()
	cam := camera.CapturedFrame{Index: f.cam, TimestampUS: int64(f.cam) * 100000, Image: camera.SimHandle{Frame: f.cam}}
	f.cam++
	_, meta, err := f.ctrl.Generate(direction, index)
	require.NoError(f.t, err)
	meta.CameraFrameIndex = cam.Index
	return cam, meta
}

// fill appends frames [0, n) of direction.
func (f *recorderFeed) fill(r *Recorder, direction string, n int) {
	f.t.Helper()
	for i := 0; i < n; i++ {
		cam, meta := f.next(direction, i)
		_, err := r.Append(cam, meta)
		require.NoError(f.t, err)
	}
}

func smallConfig(t *testing.T) *config.Config {
	return testutil.SmallConfig(t)
}
