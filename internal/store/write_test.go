package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDirection_CommitsPairsAndSummary(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")

	pairs := createTestPairs("LR", 5)
	dir := DirectionRow{
		SessionID: "s-1", Label: "LR", Ordinal: 0, Valid: true,
		CameraCount: 5, StimulusCount: 5, PairsStored: 5,
	}
	require.NoError(t, s.WriteDirection(ctx, dir, pairs, nil))

	n, err := s.CountPairs(ctx, "s-1", "LR")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestWriteDirection_PairsStoredMismatch(t *testing.T) {
	s := createTestStore(t)
	createTestSession(t, s, "s-1")

	dir := DirectionRow{SessionID: "s-1", Label: "LR", PairsStored: 3}
	err := s.WriteDirection(context.Background(), dir, createTestPairs("LR", 2), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pairs_stored=3")
}

func TestWriteDirection_DuplicateFrameIndexRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")

	pairs := createTestPairs("LR", 3)
	pairs[2].FrameIndex = 1
	dir := DirectionRow{
		SessionID: "s-1", Label: "LR", Valid: true,
		CameraCount: 3, StimulusCount: 3, PairsStored: 3,
	}
	require.Error(t, s.WriteDirection(ctx, dir, pairs, nil))

	// Nothing from the failed transaction is visible.
	dirs, err := s.ReadDirections(ctx, "s-1")
	require.NoError(t, err)
	assert.Empty(t, dirs)
	n, err := s.CountPairs(ctx, "s-1", "LR")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWriteDirection_AngleCheckConstraint(t *testing.T) {
	s := createTestStore(t)
	createTestSession(t, s, "s-1")

	pairs := createTestPairs("LR", 1)
	pairs[0].AngleState = "not_applicable" // value still set
	dir := DirectionRow{
		SessionID: "s-1", Label: "LR", CameraCount: 1, StimulusCount: 1, PairsStored: 1,
	}
	assert.Error(t, s.WriteDirection(context.Background(), dir, pairs, nil))
}

func TestWriteDirection_UnknownSessionRejected(t *testing.T) {
	s := createTestStore(t)

	dir := DirectionRow{SessionID: "missing", Label: "LR"}
	assert.Error(t, s.WriteDirection(context.Background(), dir, nil, nil))
}

func TestWriteDirection_Orphans(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")

	dir := DirectionRow{
		SessionID: "s-1", Label: "RL", Ordinal: 1, Valid: false,
		InvalidReason: "camera=3 stimulus=2",
		CameraCount:   3, StimulusCount: 2, PairsStored: 2,
	}
	orphans := []OrphanRow{{Direction: "RL", CameraFrameIndex: 7, TimestampUS: 700}}
	require.NoError(t, s.WriteDirection(ctx, dir, createTestPairs("RL", 2), orphans))

	got, err := s.ReadOrphans(ctx, "s-1", "RL")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].CameraFrameIndex)
	assert.Equal(t, int64(700), got[0].TimestampUS)
}

func TestWriteSession_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	createTestSession(t, s, "s-1")

	err := s.WriteSession(context.Background(), SessionRow{ID: "s-1", StartedAt: "x", ConfigHash: "h", Policy: "mark"})
	assert.Error(t, err)
}
