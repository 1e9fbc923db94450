package testutil

import "sync"

// StepClock is a deterministic microsecond clock for tests.
//
// Every call to NowUS returns the current time and then advances it by a
// fixed step, so a simulated camera driven by a StepClock produces a perfectly
// regular cadence regardless of scheduler timing.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start int64
	now   int64
	step  int64
}

// NewStepClock creates a clock starting at start that advances by step per read.
//
// The first call to NowUS() returns start.
func NewStepClock(start, step int64) *StepClock {
	return &StepClock{start: start, now: start, step: step}
}

// NowUS returns the current time and advances the clock by one step.
func (c *StepClock) NowUS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now += c.step
	return t
}

// Peek returns the next value NowUS would return, without advancing.
func (c *StepClock) Peek() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start value.
//
// Used for test reuse. After Reset(), the next call to NowUS() returns start.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
