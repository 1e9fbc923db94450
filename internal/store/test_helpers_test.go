package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pairs.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession writes a minimal session row.
func createTestSession(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.WriteSession(context.Background(), SessionRow{
		ID:         id,
		StartedAt:  "2026-01-01T00:00:00Z",
		ConfigHash: "cfg-hash",
		FrameRate:  30,
		Policy:     "mark",
	})
	if err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
}

// createTestPairs builds n sequential present-angle pairs for a direction.
func createTestPairs(direction string, n int) []PairRow {
	pairs := make([]PairRow, n)
	for i := range pairs {
		v := float64(i)
		pairs[i] = PairRow{
			Direction:        direction,
			FrameIndex:       i,
			CameraFrameIndex: uint64(i),
			TimestampUS:      int64(i) * 33333,
			AngleState:       "present",
			AngleValue:       &v,
			Complete:         i == n-1,
			StimulusHash:     fmt.Sprintf("hash-%d", i),
			Seq:              int64(i + 1),
		}
	}
	return pairs
}
