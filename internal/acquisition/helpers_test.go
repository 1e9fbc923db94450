package acquisition

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stimsync/internal/camera"
	"github.com/roach88/stimsync/internal/config"
	"github.com/roach88/stimsync/internal/stimulus"
	"github.com/roach88/stimsync/internal/testutil"
)

const eventTimeout = 10 * time.Second

// newTestManager builds a manager around a simulated camera with a
// regular 100ms cadence, an immediate pacer and a temp output root.
func newTestManager(t *testing.T, cfg *config.Config, opts ...Option) (*Manager, *camera.Sim) {
	t.Helper()
	cam := camera.NewSim(testutil.NewStepClock(0, 100000))
	base := []Option{
		WithConfig(cfg),
		WithPacerFactory(NewImmediatePacer),
		WithIDGenerator(testutil.NewSequenceIDGenerator("session-1", "session-2", "session-3")),
		WithOutputRoot(t.TempDir()),
	}
	return New(cam, append(base, opts...)...), cam
}

// waitEvent returns the first event of kind, skipping others.
func waitEvent(t *testing.T, m *Manager, kind EventKind) Event {
	t.Helper()
	deadline := time.After(eventTimeout)
	for {
		select {
		case ev := <-m.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event within %s (status %+v)", kind, eventTimeout, m.Status())
		}
	}
}

// gatedPacer lets the test release loop iterations one tick at a time.
type gatedPacer struct {
	tick chan struct{}
}

func newGatedPacer() *gatedPacer {
	return &gatedPacer{tick: make(chan struct{})}
}

func (p *gatedPacer) factory(time.Duration) Pacer { return p }

func (p *gatedPacer) Wait(ctx context.Context) error {
	select {
	case <-p.tick:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *gatedPacer) Stop() {}

// release lets n iterations begin. It returns once the loop has taken the nth tick.
func (p *gatedPacer) release(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case p.tick <- struct{}{}:
		case <-time.After(eventTimeout):
			t.Fatalf("loop did not take tick %d", i+1)
		}
	}
}

// failingGenerator wraps a real controller and fails at one frame.
type failingGenerator struct {
	stimulus.Generator
	direction string
	index     int
}

func (g failingGenerator) Generate(direction string, index int) (stimulus.Frame, stimulus.Metadata, error) {
	if direction == g.direction && index == g.index {
		return stimulus.Frame{}, stimulus.Metadata{}, errors.New("render failed")
	}
	return g.Generator.Generate(direction, index)
}

func failAt(direction string, index int) GeneratorFactory {
	return func(cfg *config.Config) (stimulus.Generator, error) {
		c, err := stimulus.New(cfg)
		if err != nil {
			return nil, err
		}
		return failingGenerator{Generator: c, direction: direction, index: index}, nil
	}
}

// blockingCamera hangs in Capture until released, ignoring ctx like a
// stuck driver would.
type blockingCamera struct {
	release chan struct{}
	entered chan struct{}
	once    sync.Once
	next    uint64
}

func newBlockingCamera(t *testing.T) *blockingCamera {
	c := &blockingCamera{release: make(chan struct{}), entered: make(chan struct{})}
	t.Cleanup(func() { close(c.release) })
	return c
}

func (c *blockingCamera) Capture(ctx context.Context) (camera.CapturedFrame, error) {
	c.once.Do(func() { close(c.entered) })
	<-c.release
	c.next++
	return camera.CapturedFrame{Index: c.next - 1}, nil
}

// recordingDisplay keeps every presented frame.
type recordingDisplay struct {
	mu     sync.Mutex
	frames []stimulus.Frame
}

func (d *recordingDisplay) Present(ctx context.Context, f stimulus.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, f)
	return nil
}

func (d *recordingDisplay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

func scenarioConfig(t *testing.T, cycles int) *config.Config {
	t.Helper()
	src := `
frame_rate: 30
directions: ["LR", "RL", "TB", "BT"]
cycles: ` + strconv.Itoa(cycles) + `
direction_duration_s: 5
stop_timeout_s: 2
stimulus: {width_px: 16, height_px: 12, bar_width_px: 2}
`
	return testutil.ParseConfig(t, src)
}

func requireMode(t *testing.T, m *Manager, mode Mode) {
	t.Helper()
	require.Equal(t, mode, m.Status().Mode)
}
