package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/stimsync/internal/camera"
	"github.com/roach88/stimsync/internal/config"
	"github.com/roach88/stimsync/internal/fault"
	"github.com/roach88/stimsync/internal/recorder"
	"github.com/roach88/stimsync/internal/stimulus"
	"github.com/roach88/stimsync/internal/synctrack"
)

// eventBuffer is the capacity of the Events channel.
const eventBuffer = 64

// GeneratorFactory builds the stimulus generator for a session.
type GeneratorFactory func(cfg *config.Config) (stimulus.Generator, error)

func defaultGenerator(cfg *config.Config) (stimulus.Generator, error) {
	c, err := stimulus.New(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Params are the arguments of Start.
type Params struct {
	// Config overrides the manager's configuration for this session.
	Config *config.Config
}

// SessionInfo describes a started recording session.
type SessionInfo struct {
	ID                 string    `json:"id"`
	Dir                string    `json:"dir"`
	FrameRate          float64   `json:"frame_rate"`
	Directions         []string  `json:"directions"`
	FramesPerDirection int       `json:"frames_per_direction"`
	StartedAt          time.Time `json:"started_at"`
}

// session is one running loop and everything it owns.
type session struct {
	id        string
	mode      Mode
	cfg       *config.Config
	startedAt time.Time
	loop      *loop
	body      func(ctx, waitCtx context.Context) outcome
	cancel    context.CancelFunc
	rec       *recorder.Recorder // Recording only
	tracker   *synctrack.Tracker
}

// Manager is the acquisition mode state machine.
type Manager struct {
	cam          camera.Camera
	display      camera.Display
	cfg          *config.Config
	newGenerator GeneratorFactory
	newPacer     PacerFactory
	ids          IDGenerator
	outputRoot   string
	events       chan Event

	// lock is the session-level lock. Start and SetMode TryLock it and fail
	// rather than queue behind a transition already in flight; Stop waits.
	lock      sync.Mutex
	active    *session // guarded by lock
	lastSaved string   // guarded by lock

	statusMu    sync.Mutex
	status      Status
	statusOwner *session // loop hooks update status only for this session
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig sets the configuration used by Preview and by Start when
// Params.Config is nil.
func WithConfig(cfg *config.Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithDisplay sets the collaborator that presents stimulus frames.
func WithDisplay(d camera.Display) Option {
	return func(m *Manager) { m.display = d }
}

// WithGeneratorFactory replaces stimulus.New as the generator constructor.
func WithGeneratorFactory(f GeneratorFactory) Option {
	return func(m *Manager) { m.newGenerator = f }
}

// WithPacerFactory sets the loop pacer. Default: NewTickerPacer.
func WithPacerFactory(f PacerFactory) Option {
	return func(m *Manager) { m.newPacer = f }
}

// WithIDGenerator sets the session ID source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) { m.ids = g }
}

// WithOutputRoot overrides the config's output_dir.
func WithOutputRoot(dir string) Option {
	return func(m *Manager) { m.outputRoot = dir }
}

// WithPlaybackSession sets the session directory Playback replays until
// this manager saves a session of its own.
func WithPlaybackSession(dir string) Option {
	return func(m *Manager) { m.lastSaved = dir }
}

// New creates a Manager in Idle. cam may be nil; Start and Preview then
// fail with a configuration fault.
func New(cam camera.Camera, opts ...Option) *Manager {
	m := &Manager{
		cam:          cam,
		newGenerator: defaultGenerator,
		newPacer:     NewTickerPacer,
		ids:          UUIDv7Generator{},
		events:       make(chan Event, eventBuffer),
		status:       Status{Mode: ModeIdle},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events delivers natural completions, direction results and loop faults.
// Events are dropped when the buffer is full; Status always holds the
// latest outcome.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Status returns a snapshot. It never waits for the capture loop.
func (m *Manager) Status() Status {
	m.statusMu.Lock()
	s := m.status
	owner := m.statusOwner
	m.statusMu.Unlock()

	if owner != nil {
		if owner.rec != nil {
			s.Directions = owner.rec.Snapshot()
		}
		s.Sync = owner.tracker.Snapshot()
	}
	return s
}

// Start enters Recording.
//
// All preconditions (configuration, camera, stimulus generator, recorder)
// are checked before any goroutine starts or any state changes; a failure
// is a configuration fault and the mode is unchanged. A running Preview is
// stopped first. Fails with Busy while another session or transition is active.
func (m *Manager) Start(ctx context.Context, p Params) (SessionInfo, error) {
	const op = "start"
	if err := ctx.Err(); err != nil {
		return SessionInfo{}, fmt.Errorf("start: %w", err)
	}
	if !m.lock.TryLock() {
		return SessionInfo{}, fault.New(fault.KindBusy, op, "another transition is in progress")
	}
	defer m.lock.Unlock()

	if a := m.active; a != nil {
		switch a.mode {
		case ModeRecording:
			return SessionInfo{}, fault.New(fault.KindBusy, op, "a recording session is already active")
		case ModePlayback:
			return SessionInfo{}, fault.New(fault.KindInvalidTransition, op, "playback is running")
		}
	}

	cfg := p.Config
	if cfg == nil {
		cfg = m.cfg
	}
	sess, err := m.prepareRecording(cfg)
	if err != nil {
		slog.Error("start rejected", "error", err)
		return SessionInfo{}, err
	}

	if a := m.active; a != nil {
		if err := m.haltLocked(a); err != nil {
			return SessionInfo{}, err
		}
	}

	m.launch(ctx, sess)
	return SessionInfo{
		ID:                 sess.id,
		Dir:                sess.rec.Dir(),
		FrameRate:          cfg.FrameRate,
		Directions:         append([]string(nil), cfg.Directions...),
		FramesPerDirection: cfg.FramesPerDirection(),
		StartedAt:          sess.startedAt,
	}, nil
}

// Stop ends Recording: it signals the loop, waits for the current
// iteration to drain (bounded by stop_timeout_s), finalizes directions and
// saves the session.
//
// Stop waits for a transition already holding the session lock, such as a
// rejected Start or the natural-completion save, instead of failing. If
// that transition ended the recording, Stop returns InvalidTransition.
//
// A drain timeout puts the manager in Error with a runtime fault. A save
// failure puts it in Error and returns the persistence fault.
func (m *Manager) Stop(ctx context.Context) (recorder.SaveResult, error) {
	const op = "stop"
	m.lock.Lock()
	defer m.lock.Unlock()

	a := m.active
	if a == nil || a.mode != ModeRecording {
		return recorder.SaveResult{}, fault.New(fault.KindInvalidTransition, op, "not recording")
	}
	return m.stopRecordingLocked(ctx, a)
}

// SetMode switches to Idle, Preview or Playback. Recording is entered only
// through Start.
//
// SetMode is permitted from Idle, Error or a terminal sub-state. Leaving a
// running Recording stops and saves it first. A running Preview or Playback
// can only be halted with SetMode(ModeIdle); switching it straight to the
// other viewer mode fails with InvalidTransition. Playback replays the
// session most recently saved before the call.
func (m *Manager) SetMode(ctx context.Context, target Mode) error {
	const op = "set_mode"
	switch target {
	case ModeIdle, ModePreview, ModePlayback:
	case ModeRecording:
		return fault.New(fault.KindInvalidTransition, op, "recording is entered through start")
	default:
		return fault.New(fault.KindInvalidTransition, op, fmt.Sprintf("cannot enter %q", target))
	}

	if !m.lock.TryLock() {
		return fault.New(fault.KindInvalidTransition, op, "another transition is in progress")
	}
	defer m.lock.Unlock()

	if a := m.active; a != nil && a.mode == target {
		return nil
	}
	if !m.canSwitchLocked(target) {
		return fault.New(fault.KindInvalidTransition, op,
			fmt.Sprintf("%s is running; return to idle first", m.active.mode))
	}

	var next *session
	var err error
	switch target {
	case ModePreview:
		next, err = m.preparePreview()
	case ModePlayback:
		next, err = m.preparePlayback(ctx)
	}
	if err != nil {
		slog.Error("set mode rejected", "target", target, "error", err)
		return err
	}

	if a := m.active; a != nil {
		if a.mode == ModeRecording {
			if _, err := m.stopRecordingLocked(ctx, a); err != nil {
				return err
			}
		} else if err := m.haltLocked(a); err != nil {
			return err
		}
	}

	if next == nil {
		m.statusMu.Lock()
		m.status = Status{Mode: ModeIdle, LastSave: m.status.LastSave, Sync: m.status.Sync}
		m.statusOwner = nil
		m.statusMu.Unlock()
		slog.Info("mode changed", "mode", ModeIdle)
		return nil
	}
	m.launch(ctx, next)
	return nil
}

// canSwitchLocked reports whether target may be entered from the current
// state: Idle, Error or a terminal sub-state. A running Recording may be
// left for any mode since it is stopped and saved first; a running Preview
// or Playback may only be left for Idle. Caller must hold m.lock.
func (m *Manager) canSwitchLocked(target Mode) bool {
	m.statusMu.Lock()
	st := m.status
	m.statusMu.Unlock()

	switch {
	case st.Mode == ModeIdle, st.Mode == ModeError, st.SubState.terminal():
		return true
	case target == ModeIdle:
		return true
	}
	return st.Mode == ModeRecording
}

// prepareRecording builds a recording session without side effects.
func (m *Manager) prepareRecording(cfg *config.Config) (*session, error) {
	const op = "start"
	if cfg == nil {
		return nil, fault.New(fault.KindConfiguration, op, "no configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, op, "invalid configuration", err)
	}
	if m.cam == nil {
		return nil, fault.New(fault.KindConfiguration, op, "no camera configured")
	}
	gen, err := m.newGenerator(cfg)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, op, "stimulus controller not available", err)
	}
	root := m.outputRoot
	if root == "" {
		root = cfg.OutputDir
	}

	sess := &session{
		id:        m.ids.Generate(),
		mode:      ModeRecording,
		cfg:       cfg,
		startedAt: time.Now().UTC(),
		tracker:   synctrack.New(cfg.Period()),
	}
	rec, err := recorder.New(cfg, sess.id, root, recorder.WithStartedAt(sess.startedAt))
	if err != nil {
		return nil, err
	}
	sess.rec = rec

	l := newLoop(m.newPacer(cfg.Period()), sess.tracker, m.hooksFor(sess))
	l.cam = m.cam
	l.display = m.display
	l.gen = gen
	l.rec = rec
	l.directions = append([]string(nil), cfg.Directions...)
	sess.loop = l
	sess.body = l.runRecording
	return sess, nil
}

func (m *Manager) preparePreview() (*session, error) {
	const op = "set_mode"
	cfg := m.cfg
	if cfg == nil {
		return nil, fault.New(fault.KindConfiguration, op, "no configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, op, "invalid configuration", err)
	}
	if m.cam == nil {
		return nil, fault.New(fault.KindConfiguration, op, "no camera configured")
	}
	sess := &session{
		mode:      ModePreview,
		cfg:       cfg,
		startedAt: time.Now().UTC(),
		tracker:   synctrack.New(cfg.Period()),
	}
	l := newLoop(m.newPacer(cfg.Period()), sess.tracker, m.hooksFor(sess))
	l.cam = m.cam
	sess.loop = l
	sess.body = l.runPreview
	return sess, nil
}

func (m *Manager) preparePlayback(ctx context.Context) (*session, error) {
	const op = "set_mode"
	if m.lastSaved == "" {
		return nil, fault.New(fault.KindConfiguration, op, "no saved session to play back")
	}
	plan, err := loadPlayback(ctx, m.lastSaved)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, op, "load session for playback", err)
	}
	gen, err := m.newGenerator(plan.cfg)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, op, "stimulus controller not available", err)
	}
	sess := &session{
		id:        plan.sessionID,
		mode:      ModePlayback,
		cfg:       plan.cfg,
		startedAt: time.Now().UTC(),
		tracker:   synctrack.New(plan.cfg.Period()),
	}
	l := newLoop(m.newPacer(plan.cfg.Period()), sess.tracker, m.hooksFor(sess))
	l.display = m.display
	l.gen = gen
	sess.loop = l
	sess.body = l.runPlayback(plan)
	return sess, nil
}

// launch starts a prepared session. Caller must hold m.lock.
func (m *Manager) launch(ctx context.Context, sess *session) {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess.cancel = cancel
	m.active = sess

	m.statusMu.Lock()
	m.status = Status{
		Mode:               sess.mode,
		SubState:           SubStateRunning,
		SessionID:          sess.id,
		StartedAt:          sess.startedAt,
		FramesPerDirection: sess.cfg.FramesPerDirection(),
		LastSave:           m.status.LastSave,
	}
	m.statusOwner = sess
	m.statusMu.Unlock()

	sess.loop.start(loopCtx, sess.body)
	go m.watch(sess)

	slog.Info("session started",
		"mode", sess.mode,
		"session_id", sess.id,
		"frame_rate", sess.cfg.FrameRate,
	)
}

func (m *Manager) hooksFor(sess *session) hooks {
	return hooks{
		frame: func(cam camera.CapturedFrame, meta *stimulus.Metadata) {
			m.statusMu.Lock()
			defer m.statusMu.Unlock()
			if m.statusOwner != sess {
				return
			}
			if sess.mode == ModePlayback {
				m.status.FramesPresented++
			} else {
				m.status.FramesCaptured++
			}
			if meta != nil {
				m.status.Direction = meta.Direction
				m.status.Cycle = meta.Cycle
			}
		},
		directionDone: func(direction string) {
			var err error
			if sess.rec != nil {
				_, err = sess.rec.FinalizeDirection(direction, "")
			}
			m.emit(Event{Kind: EventDirectionComplete, SessionID: sess.id, Direction: direction, Err: err})
		},
	}
}

// watch settles a session whose loop ended on its own.
func (m *Manager) watch(sess *session) {
	<-sess.loop.done

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.active != sess {
		// Already settled by Stop or SetMode.
		return
	}

	if sess.mode == ModeRecording {
		m.settleRecordingLocked(context.Background(), sess, sess.loop.out)
		return
	}
	m.settleViewerLocked(sess, sess.loop.out)
}

// stopRecordingLocked drains and saves a recording. Caller must hold m.lock.
func (m *Manager) stopRecordingLocked(ctx context.Context, sess *session) (recorder.SaveResult, error) {
	m.statusMu.Lock()
	m.status.Mode = ModeStopping
	m.status.SubState = SubStateNone
	m.statusMu.Unlock()

	timeout := sess.cfg.StopTimeout()
	sess.loop.requestStop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-sess.loop.done:
		return m.settleRecordingLocked(ctx, sess, sess.loop.out)
	case <-timer.C:
	}

	// The loop is stuck inside a collaborator call. Flush what was
	// captured; the recorder rejects anything the loop appends later.
	err := &fault.Error{
		Kind:    fault.KindRuntimeFault,
		Op:      "stop",
		Message: fmt.Sprintf("capture loop did not stop within %s", timeout),
	}
	slog.Error("stop timed out",
		"session_id", sess.id,
		"timeout", timeout,
	)
	return m.settleRecordingLocked(ctx, sess, outcome{err: err})
}

// settleRecordingLocked finalizes open directions, saves the session and
// moves to Idle, or to Error on a fault or save failure. Caller must hold m.lock.
func (m *Manager) settleRecordingLocked(ctx context.Context, sess *session, out outcome) (recorder.SaveResult, error) {
	sess.cancel()

	abort, endReason := "", "completed"
	switch {
	case out.err != nil:
		abort = out.err.Error()
		endReason = "fault: " + abort
	case !out.completed:
		abort = "stopped"
		endReason = "stopped"
	}
	// Directions the loop left open are finalized here; they get the same
	// completion event as those finalized by the loop.
	for _, d := range sess.rec.Snapshot() {
		if d.Finalized {
			continue
		}
		_, ferr := sess.rec.FinalizeDirection(d.Label, abort)
		m.emit(Event{Kind: EventDirectionComplete, SessionID: sess.id, Direction: d.Label, Err: ferr})
	}

	stats := sess.tracker.Snapshot()
	res, saveErr := sess.rec.SaveSession(ctx, recorder.SaveInfo{EndReason: endReason, Sync: stats})
	m.active = nil
	if saveErr == nil {
		m.lastSaved = res.Dir
	}

	err := out.err
	switch {
	case err == nil:
		err = saveErr
	case saveErr != nil:
		err = errors.Join(err, saveErr)
	}

	m.statusMu.Lock()
	next := Status{
		Mode:           ModeIdle,
		SessionID:      sess.id,
		FramesCaptured: m.status.FramesCaptured,
		Directions:     res.Directions,
		Sync:           stats,
		LastSave:       &res,
	}
	if err != nil {
		next.Mode = ModeError
		next.LastError = err
	}
	m.status = next
	m.statusOwner = nil
	m.statusMu.Unlock()

	if err != nil {
		slog.Error("session ended with error",
			"session_id", sess.id,
			"error", err,
		)
		m.emit(Event{Kind: EventFault, SessionID: sess.id, Save: &res, Err: err})
	} else {
		slog.Info("session ended",
			"session_id", sess.id,
			"reason", endReason,
		)
	}
	if saveErr == nil {
		m.emit(Event{Kind: EventSessionSaved, SessionID: sess.id, Save: &res})
	}
	return res, err
}

// haltLocked stops a running Preview or Playback. Caller must hold m.lock.
func (m *Manager) haltLocked(sess *session) error {
	sess.loop.requestStop()

	timeout := sess.cfg.StopTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-sess.loop.done:
		m.settleViewerLocked(sess, sess.loop.out)
		return nil
	case <-timer.C:
	}

	sess.cancel()
	m.active = nil
	err := &fault.Error{
		Kind:    fault.KindRuntimeFault,
		Op:      "halt",
		Message: fmt.Sprintf("%s loop did not stop within %s", sess.mode, timeout),
	}
	m.statusMu.Lock()
	m.status.Mode = ModeError
	m.status.SubState = SubStateNone
	m.status.LastError = err
	m.statusOwner = nil
	m.statusMu.Unlock()

	slog.Error("halt timed out", "mode", sess.mode, "error", err)
	m.emit(Event{Kind: EventFault, SessionID: sess.id, Err: err})
	return err
}

// settleViewerLocked records how a Preview or Playback loop ended. The mode
// is kept with a terminal sub-state. Caller must hold m.lock.
func (m *Manager) settleViewerLocked(sess *session, out outcome) {
	sess.cancel()
	m.active = nil

	m.statusMu.Lock()
	m.status.Sync = sess.tracker.Snapshot()
	if out.err != nil {
		m.status.SubState = SubStateFailed
		m.status.LastError = out.err
	} else {
		m.status.SubState = SubStateDone
	}
	m.statusOwner = nil
	m.statusMu.Unlock()

	switch {
	case out.err != nil:
		slog.Error("loop failed", "mode", sess.mode, "session_id", sess.id, "error", out.err)
		m.emit(Event{Kind: EventFault, SessionID: sess.id, Err: out.err})
	case sess.mode == ModePlayback && out.completed:
		slog.Info("playback complete", "session_id", sess.id)
		m.emit(Event{Kind: EventPlaybackDone, SessionID: sess.id})
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		slog.Warn("event dropped", "kind", ev.Kind, "session_id", ev.SessionID)
	}
}
