package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator returns predetermined session IDs for testing.
//
// This enables deterministic session directories: the same scenario with the
// same generator writes to the same paths. When the provided IDs run out it
// continues with "<prefix>-<n>" so a test that starts more sessions than it
// listed still gets distinct directories.
//
// Thread-safety: SequenceIDGenerator is safe for concurrent use via internal mutex.
type SequenceIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewSequenceIDGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewSequenceIDGenerator("session-1", "session-2")
//	gen.Generate() // "session-1"
//	gen.Generate() // "session-2"
//	gen.Generate() // "test-session-3"
func NewSequenceIDGenerator(ids ...string) *SequenceIDGenerator {
	return &SequenceIDGenerator{ids: ids}
}

// Generate returns the next session ID.
func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.ids) {
		return g.ids[g.idx-1]
	}
	return fmt.Sprintf("test-session-%d", g.idx)
}
