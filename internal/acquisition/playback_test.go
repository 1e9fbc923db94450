package acquisition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stimsync/internal/fault"
	"github.com/roach88/stimsync/internal/testutil"
)

// recordSmallSession runs a complete two-direction session and returns its directory.
func recordSmallSession(t *testing.T, m *Manager) string {
	t.Helper()
	_, err := m.Start(context.Background(), Params{})
	require.NoError(t, err)
	ev := waitEvent(t, m, EventSessionSaved)
	require.NoError(t, ev.Save.Err)
	return ev.Save.Dir
}

func TestPlayback_ReplaysLastSavedSession(t *testing.T) {
	display := &recordingDisplay{}
	m, _ := newTestManager(t, testutil.SmallConfig(t), WithDisplay(display))
	recordSmallSession(t, m)
	recorded := display.count()

	require.NoError(t, m.SetMode(context.Background(), ModePlayback))
	waitEvent(t, m, EventPlaybackDone)

	st := m.Status()
	assert.Equal(t, ModePlayback, st.Mode)
	assert.Equal(t, SubStateDone, st.SubState)
	assert.Equal(t, 20, st.FramesPresented)
	assert.Equal(t, "session-1", st.SessionID)

	require.Equal(t, 40, display.count())
	display.mu.Lock()
	defer display.mu.Unlock()
	for i := 0; i < recorded; i++ {
		assert.Equal(t, display.frames[i].Image.Pix, display.frames[recorded+i].Image.Pix, "frame %d", i)
	}
}

func TestPlayback_DetectsTamperedHash(t *testing.T) {
	m, _ := newTestManager(t, testutil.SmallConfig(t))
	dir := recordSmallSession(t, m)

	s := openSessionStore(t, dir)
	_, err := s.DB().Exec(`UPDATE frame_pairs SET stimulus_hash = 'bad' WHERE direction = 'RL' AND frame_index = 3`)
	require.NoError(t, err)

	require.NoError(t, m.SetMode(context.Background(), ModePlayback))
	ev := waitEvent(t, m, EventFault)
	assert.True(t, fault.Is(ev.Err, fault.KindIntegrity))

	st := m.Status()
	assert.Equal(t, ModePlayback, st.Mode)
	assert.Equal(t, SubStateFailed, st.SubState)
	assert.Equal(t, 13, st.FramesPresented)
}

func TestPlayback_NoSavedSession(t *testing.T) {
	m, _ := newTestManager(t, testutil.SmallConfig(t))

	err := m.SetMode(context.Background(), ModePlayback)
	assert.True(t, fault.Is(err, fault.KindConfiguration))
	requireMode(t, m, ModeIdle)
}

func TestPlayback_FromSessionDirectoryOption(t *testing.T) {
	first, _ := newTestManager(t, testutil.SmallConfig(t))
	dir := recordSmallSession(t, first)

	m := New(nil, WithPacerFactory(NewImmediatePacer), WithPlaybackSession(dir))
	require.NoError(t, m.SetMode(context.Background(), ModePlayback))
	waitEvent(t, m, EventPlaybackDone)
	assert.Equal(t, 20, m.Status().FramesPresented)
}

func TestPlayback_StartRejectedWhileRunning(t *testing.T) {
	pacer := newGatedPacer()
	m, _ := newTestManager(t, testutil.SmallConfig(t))
	recordSmallSession(t, m)
	m.newPacer = pacer.factory

	require.NoError(t, m.SetMode(context.Background(), ModePlayback))
	pacer.release(t, 2)

	_, err := m.Start(context.Background(), Params{})
	assert.True(t, fault.Is(err, fault.KindInvalidTransition))

	require.NoError(t, m.SetMode(context.Background(), ModeIdle))
	requireMode(t, m, ModeIdle)
}

func TestSetMode_RunningViewerRequiresIdle(t *testing.T) {
	pacer := newGatedPacer()
	m, _ := newTestManager(t, testutil.SmallConfig(t))
	recordSmallSession(t, m)
	m.newPacer = pacer.factory

	require.NoError(t, m.SetMode(context.Background(), ModePreview))
	pacer.release(t, 2)

	err := m.SetMode(context.Background(), ModePlayback)
	assert.True(t, fault.Is(err, fault.KindInvalidTransition))
	st := m.Status()
	assert.Equal(t, ModePreview, st.Mode)
	assert.Equal(t, SubStateRunning, st.SubState)

	require.NoError(t, m.SetMode(context.Background(), ModeIdle))
	require.NoError(t, m.SetMode(context.Background(), ModePlayback))
	pacer.release(t, 2)

	err = m.SetMode(context.Background(), ModePreview)
	assert.True(t, fault.Is(err, fault.KindInvalidTransition))
	requireMode(t, m, ModePlayback)

	require.NoError(t, m.SetMode(context.Background(), ModeIdle))
	requireMode(t, m, ModeIdle)
}

func TestSetMode_TerminalSubStatePermitsSwitch(t *testing.T) {
	m, _ := newTestManager(t, testutil.SmallConfig(t))
	recordSmallSession(t, m)

	require.NoError(t, m.SetMode(context.Background(), ModePlayback))
	waitEvent(t, m, EventPlaybackDone)
	assert.Equal(t, SubStateDone, m.Status().SubState)

	require.NoError(t, m.SetMode(context.Background(), ModePreview))
	st := m.Status()
	assert.Equal(t, ModePreview, st.Mode)
	assert.Equal(t, SubStateRunning, st.SubState)

	require.NoError(t, m.SetMode(context.Background(), ModeIdle))
}

func TestSetMode_RecordingToPreviewSavesFirst(t *testing.T) {
	pacer := newGatedPacer()
	m, _ := newTestManager(t, testutil.SmallConfig(t), WithPacerFactory(pacer.factory))

	_, err := m.Start(context.Background(), Params{})
	require.NoError(t, err)
	pacer.release(t, 3)

	require.NoError(t, m.SetMode(context.Background(), ModePreview))
	st := m.Status()
	assert.Equal(t, ModePreview, st.Mode)
	require.NotNil(t, st.LastSave)
	assert.True(t, st.LastSave.OK())

	require.NoError(t, m.SetMode(context.Background(), ModeIdle))
}
