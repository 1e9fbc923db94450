package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/stimsync/internal/acquisition"
	"github.com/roach88/stimsync/internal/camera"
	"github.com/roach88/stimsync/internal/config"
	"github.com/roach88/stimsync/internal/fault"
	"github.com/roach88/stimsync/internal/recorder"
	"github.com/roach88/stimsync/internal/stimulus"
	"github.com/roach88/stimsync/internal/testutil"
)

// stepTimeout bounds every blocking step.
const stepTimeout = 5 * time.Second

// errSimulatedCamera is returned by the simulated camera after fail_after captures.
var errSimulatedCamera = errors.New("simulated camera failure")

// Harness executes one scenario against a fresh Manager.
type Harness struct {
	cfg      *config.Config
	mgr      *acquisition.Manager
	pacer    *gatedPacer
	display  *countingDisplay
	lastSave *recorder.SaveResult
	result   *Result
}

// Run executes a scenario and returns the result. Sessions are saved under
// root. An error is returned only when the scenario cannot be executed;
// unmet expectations are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, root string) (*Result, error) {
	cfg, err := config.Parse([]byte(scenario.Config), scenario.Name+".cue")
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	cam := camera.NewSim(testutil.NewStepClock(0, cfg.Period().Microseconds()))
	if n := scenario.Camera.FailAfter; n > 0 {
		cam.FailAfter(n, errSimulatedCamera)
	}

	h := &Harness{
		cfg:     cfg,
		pacer:   newGatedPacer(),
		display: &countingDisplay{},
		result:  NewResult(),
	}

	opts := []acquisition.Option{
		acquisition.WithConfig(cfg),
		acquisition.WithDisplay(h.display),
		acquisition.WithPacerFactory(h.pacer.factory),
		acquisition.WithIDGenerator(testutil.NewSequenceIDGenerator()),
		acquisition.WithOutputRoot(root),
	}
	if f := scenario.Stimulus.FailGeneration; f != nil {
		opts = append(opts, acquisition.WithGeneratorFactory(failingFactory(f.Direction, f.Frame)))
	}
	h.mgr = acquisition.New(cam, opts...)
	defer h.shutdown()

	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step); err != nil {
			return nil, fmt.Errorf("flow step %d (%s): %w", i, step.Action, err)
		}
	}

	h.drainEvents()
	h.result.Status = h.mgr.Status()
	h.result.Presented = h.display.count()

	if h.lastSave != nil && h.lastSave.OK() {
		desc, err := recorder.LoadDescriptor(h.lastSave.Dir)
		if err != nil {
			return nil, fmt.Errorf("load saved session: %w", err)
		}
		h.result.Saved = desc
	}

	for i, a := range scenario.Assertions {
		if err := evaluateAssertion(a, h.result); err != nil {
			h.result.AddError(fmt.Sprintf("assertion %d: %v", i, err))
		}
	}

	slog.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", h.result.Pass,
		"errors", len(h.result.Errors),
	)
	return h.result, nil
}

// executeStep runs one flow step and records its outcome.
func (h *Harness) executeStep(ctx context.Context, i int, step Step) error {
	var stepErr error
	recordMode := true

	switch step.Action {
	case ActionStart:
		_, stepErr = h.mgr.Start(ctx, acquisition.Params{Config: h.cfg})
	case ActionStop:
		var res recorder.SaveResult
		res, stepErr = h.mgr.Stop(ctx)
		if res.SessionID != "" {
			h.lastSave = &res
		}
	case ActionSetMode:
		mode, err := acquisition.ParseMode(step.Mode)
		if err != nil {
			return err
		}
		stepErr = h.mgr.SetMode(ctx, mode)
	case ActionAdvance:
		if err := h.pacer.release(step.Frames); err != nil {
			return err
		}
		recordMode = false
	case ActionWait:
		if err := h.waitEvent(acquisition.EventKind(step.Event)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}

	got := errorKind(stepErr)
	mode := ""
	if recordMode {
		mode = string(h.mgr.Status().Mode)
	}
	h.result.addStep(i, step.Action, mode, got)

	if got != step.ExpectError {
		h.result.AddError(fmt.Sprintf("flow step %d (%s): expected error %q, got %q (%v)",
			i, step.Action, step.ExpectError, got, stepErr))
	}
	return nil
}

// waitEvent consumes events until one of kind arrives.
func (h *Harness) waitEvent(kind acquisition.EventKind) error {
	timer := time.NewTimer(stepTimeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-h.mgr.Events():
			h.observe(ev)
			if ev.Kind == kind {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("no %s event within %s", kind, stepTimeout)
		}
	}
}

// drainEvents records events already emitted.
func (h *Harness) drainEvents() {
	for {
		select {
		case ev := <-h.mgr.Events():
			h.observe(ev)
		default:
			return
		}
	}
}

func (h *Harness) observe(ev acquisition.Event) {
	h.result.addEvent(ev)
	if ev.Save != nil && ev.Save.SessionID != "" {
		h.lastSave = ev.Save
	}
}

// shutdown leaves the manager without a running loop so nothing writes
// under root after Run returns.
func (h *Harness) shutdown() {
	ctx := context.Background()
	switch h.mgr.Status().Mode {
	case acquisition.ModeRecording:
		if _, err := h.mgr.Stop(ctx); err != nil {
			slog.Debug("shutdown stop", "error", err)
		}
	case acquisition.ModePreview, acquisition.ModePlayback:
		if err := h.mgr.SetMode(ctx, acquisition.ModeIdle); err != nil {
			slog.Debug("shutdown set_mode", "error", err)
		}
	}
}

// errorKind returns the fault kind of err, or "" for nil. Errors that carry
// no fault kind are reported as their message so mismatches stay visible.
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	if kind := fault.KindOf(err); kind != "" {
		return string(kind)
	}
	return err.Error()
}

// gatedPacer ticks only when the flow releases it.
type gatedPacer struct {
	tick chan struct{}
}

func newGatedPacer() *gatedPacer {
	return &gatedPacer{tick: make(chan struct{})}
}

func (p *gatedPacer) factory(time.Duration) acquisition.Pacer { return p }

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
func (p *gatedPacer) release(n int) error {
	timer := time.NewTimer(stepTimeout)
	defer timer.Stop()
	for i := 0; i < n; i++ {
		select {
		case p.tick <- struct{}{}:
		case <-timer.C:
			return fmt.Errorf("loop did not take tick %d of %d", i+1, n)
		}
	}
	return nil
}

// countingDisplay counts presented frames.
type countingDisplay struct {
	mu sync.Mutex
	n  int
}

func (d *countingDisplay) Present(ctx context.Context, _ stimulus.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.n++
	return nil
}

func (d *countingDisplay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

// failingGenerator fails generation of one frame.
type failingGenerator struct {
	stimulus.Generator
	direction string
	frame     int
}

func (g failingGenerator) Generate(direction string, index int) (stimulus.Frame, stimulus.Metadata, error) {
	if direction == g.direction && index == g.frame {
		return stimulus.Frame{}, stimulus.Metadata{}, fmt.Errorf("simulated render failure at %s[%d]", direction, index)
	}
	return g.Generator.Generate(direction, index)
}

func failingFactory(direction string, frame int) acquisition.GeneratorFactory {
	return func(cfg *config.Config) (stimulus.Generator, error) {
		c, err := stimulus.New(cfg)
		if err != nil {
			return nil, err
		}
		return failingGenerator{Generator: c, direction: direction, frame: frame}, nil
	}
}
