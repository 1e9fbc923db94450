package recorder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stimsync/internal/camera"
	"github.com/roach88/stimsync/internal/config"
	"github.com/roach88/stimsync/internal/fault"
	"github.com/roach88/stimsync/internal/store"
	"github.com/roach88/stimsync/internal/synctrack"
)

// recordPartial records LR fully and RL with an orphan after 5 pairs.
func recordPartial(t *testing.T, r *Recorder, cfg *config.Config) {
	t.Helper()
	f := newFeed(t, cfg)
	f.fill(r, "LR", 10)
	_, err := r.FinalizeDirection("LR", "")
	require.NoError(t, err)

	f.fill(r, "RL", 5)
	require.NoError(t, r.AppendOrphan("RL", camera.CapturedFrame{Index: 15, TimestampUS: 1500000}))
	_, err = r.FinalizeDirection("RL", "generation failed")
	require.Error(t, err)
}

func openSaved(t *testing.T, dir string) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(dir, PairsFile))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSaveSession_WritesPairsAndDescriptor(t *testing.T) {
	cfg := smallConfig(t)
	r := newTestRecorder(t, cfg)
	f := newFeed(t, cfg)
	f.fill(r, "LR", 10)
	f.fill(r, "RL", 10)

	res, err := r.SaveSession(context.Background(), SaveInfo{
		EndReason: "completed",
		Sync:      synctrack.Stats{Frames: 20},
	})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, r.Dir(), res.Dir)
	require.Len(t, res.Directions, 2)
	for _, d := range res.Directions {
		assert.True(t, d.Valid, d.Label)
		assert.Equal(t, 10, d.PairsStored)
	}

	_, err = os.Stat(res.Dir + ".partial")
	assert.True(t, os.IsNotExist(err))

	desc, err := LoadDescriptor(res.Dir)
	require.NoError(t, err)
	assert.Equal(t, "session-1", desc.SessionID)
	assert.Equal(t, "completed", desc.EndReason)
	assert.Equal(t, 10, desc.FramesPerDirection)
	assert.Equal(t, 20, desc.Sync.Frames)
	hash, err := cfg.Hash()
	require.NoError(t, err)
	assert.Equal(t, hash, desc.ConfigHash)
	assert.Equal(t, cfg.Directions, desc.Config.Directions)

	st := openSaved(t, res.Dir)
	rows, err := st.ReadPairs(context.Background(), "session-1", "RL")
	require.NoError(t, err)
	require.Len(t, rows, 10)
	for i, row := range rows {
		meta, err := MetadataFromRow(row)
		require.NoError(t, err)
		want := r.Pairs("RL")[i]
		assert.Equal(t, want.Stimulus, meta)
		assert.Equal(t, want.TimestampUS(), row.TimestampUS)
	}
}

func TestSaveSession_MarkPolicyStoresInvalidDirection(t *testing.T) {
	cfg := smallConfig(t)
	r := newTestRecorder(t, cfg)
	recordPartial(t, r, cfg)

	res, err := r.SaveSession(context.Background(), SaveInfo{EndReason: "fault"})
	require.NoError(t, err)
	require.Len(t, res.Directions, 2)
	rl := res.Directions[1]
	assert.False(t, rl.Valid)
	assert.Equal(t, 5, rl.PairsStored)

	st := openSaved(t, res.Dir)
	n, err := st.CountPairs(context.Background(), "session-1", "RL")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	orphans, err := st.ReadOrphans(context.Background(), "session-1", "RL")
	require.NoError(t, err)
	assert.Len(t, orphans, 1)
}

func TestSaveSession_ExcludePolicyDropsInvalidPairs(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Recorder.InvalidPolicy = config.PolicyExclude
	r := newTestRecorder(t, cfg)
	recordPartial(t, r, cfg)

	res, err := r.SaveSession(context.Background(), SaveInfo{})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Directions[0].PairsStored)
	assert.Equal(t, 0, res.Directions[1].PairsStored)

	st := openSaved(t, res.Dir)
	dirs, err := st.ReadDirections(context.Background(), "session-1")
	require.NoError(t, err)
	require.Len(t, dirs, 2)
	assert.False(t, dirs[1].Valid)
	assert.Equal(t, 6, dirs[1].CameraCount)
	n, err := st.CountPairs(context.Background(), "session-1", "RL")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveSession_RejectPolicyFailsSave(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Recorder.InvalidPolicy = config.PolicyReject
	r := newTestRecorder(t, cfg)
	recordPartial(t, r, cfg)

	res, err := r.SaveSession(context.Background(), SaveInfo{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindPersistence))
	assert.True(t, fault.Is(err, fault.KindIntegrity))
	assert.Equal(t, err, res.Err)
	assert.Empty(t, res.Dir)

	_, statErr := os.Stat(r.Dir())
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveSession_FinalizesOpenDirectionsAsAborted(t *testing.T) {
	cfg := smallConfig(t)
	r := newTestRecorder(t, cfg)
	f := newFeed(t, cfg)
	f.fill(r, "LR", 3)

	res, err := r.SaveSession(context.Background(), SaveInfo{EndReason: "stopped"})
	require.NoError(t, err)
	require.Len(t, res.Directions, 1)
	assert.False(t, res.Directions[0].Valid)
	assert.Equal(t, 3, res.Directions[0].PairsStored)
}

func TestSaveSession_Twice(t *testing.T) {
	cfg := smallConfig(t)
	r := newTestRecorder(t, cfg)

	_, err := r.SaveSession(context.Background(), SaveInfo{})
	require.NoError(t, err)
	_, err = r.SaveSession(context.Background(), SaveInfo{})
	assert.True(t, fault.Is(err, fault.KindPersistence))
}

func TestSaveSession_ExistingDirectoryFailsAndCleansStaging(t *testing.T) {
	cfg := smallConfig(t)
	r := newTestRecorder(t, cfg)
	require.NoError(t, os.MkdirAll(r.Dir(), 0o755))

	_, err := r.SaveSession(context.Background(), SaveInfo{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindPersistence))
	_, statErr := os.Stat(r.Dir() + ".partial")
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveSession_CancelledContext(t *testing.T) {
	cfg := smallConfig(t)
	r := newTestRecorder(t, cfg)
	f := newFeed(t, cfg)
	f.fill(r, "LR", 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.SaveSession(ctx, SaveInfo{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindPersistence))
	_, statErr := os.Stat(r.Dir())
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(r.Dir() + ".partial")
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadDescriptor_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DescriptorFile), []byte("version: 1\nbogus: true\n"), 0o644))

	_, err := LoadDescriptor(dir)
	assert.Error(t, err)
}
