// Package camera defines the collaborator contracts consumed by the
// acquisition engine: the camera that captures frames and the display that
// presents stimulus frames. Drivers and image decoding live outside this module.
package camera

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/stimsync/internal/stimulus"
)

// Handle is an opaque reference to image data owned by the camera. The
// engine stores and forwards handles but never reads or copies pixels.
type Handle any

// CapturedFrame is one camera capture.
type CapturedFrame struct {
	// Index is the camera's frame counter for this session.
	Index uint64
	// TimestampUS is the capture time in microseconds from a monotonic source.
	TimestampUS int64
	// Image is the camera-owned image reference.
	Image Handle
}

// Camera captures frames. A returned error is a hardware failure and is
// fatal to the running session.
type Camera interface {
	Capture(ctx context.Context) (CapturedFrame, error)
}

// Display presents rendered stimulus frames. A returned error is fatal.
type Display interface {
	Present(ctx context.Context, frame stimulus.Frame) error
}

// Clock is a monotonic microsecond time source.
type Clock interface {
	NowUS() int64
}

// MonotonicClock reads the Go monotonic clock relative to its creation.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock creates a clock whose zero is now.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// NowUS returns microseconds elapsed since the clock was created.
func (c *MonotonicClock) NowUS() int64 {
	return time.Since(c.start).Microseconds()
}

// VirtualClock advances by a fixed step on every read. Offline simulated
// runs use it so timestamps follow the nominal frame period.
type VirtualClock struct {
	mu   sync.Mutex
	now  int64
	step int64
}

// NewVirtualClock creates a clock starting at zero that advances by period per read.
func NewVirtualClock(period time.Duration) *VirtualClock {
	return &VirtualClock{step: period.Microseconds()}
}

// NowUS returns the current virtual time and advances it by one step.
func (c *VirtualClock) NowUS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now += c.step
	return t
}

// SimHandle is the image reference produced by Sim.
type SimHandle struct {
	Frame uint64
}

// Sim is a simulated camera that produces sequential handles stamped by a Clock.
// It is used by the CLI when no hardware is attached and by tests.
//
// Thread-safety: Sim is safe for concurrent use via internal mutex.
type Sim struct {
	mu        sync.Mutex
	clock     Clock
	next      uint64
	failAfter int64
	failErr   error
}

// NewSim creates a simulated camera. A nil clock uses a MonotonicClock.
func NewSim(clock Clock) *Sim {
	if clock == nil {
		clock = NewMonotonicClock()
	}
	return &Sim{clock: clock, failAfter: -1}
}

// FailAfter makes every capture after n successful ones return err.
func (s *Sim) FailAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = int64(n)
	s.failErr = err
}

// Capture returns the next simulated frame.
func (s *Sim) Capture(ctx context.Context) (CapturedFrame, error) {
	if err := ctx.Err(); err != nil {
		return CapturedFrame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAfter >= 0 && int64(s.next) >= s.failAfter {
		return CapturedFrame{}, s.failErr
	}

	idx := s.next
	s.next++
	return CapturedFrame{
		Index:       idx,
		TimestampUS: s.clock.NowUS(),
		Image:       SimHandle{Frame: idx},
	}, nil
}

// Captured returns the number of frames captured so far.
func (s *Sim) Captured() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
