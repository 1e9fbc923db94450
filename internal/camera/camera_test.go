package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stimsync/internal/testutil"
)

func TestSim_SequentialFrames(t *testing.T) {
	clock := testutil.NewStepClock(0, 33_333)
	cam := NewSim(clock)

	for i := uint64(0); i < 3; i++ {
		f, err := cam.Capture(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, f.Index)
		assert.Equal(t, int64(i)*33_333, f.TimestampUS)
		assert.Equal(t, SimHandle{Frame: i}, f.Image)
	}
	assert.Equal(t, uint64(3), cam.Captured())
}

func TestSim_FailAfter(t *testing.T) {
	cam := NewSim(testutil.NewStepClock(0, 1000))
	hwErr := errors.New("sensor disconnected")
	cam.FailAfter(2, hwErr)

	_, err := cam.Capture(context.Background())
	require.NoError(t, err)
	_, err = cam.Capture(context.Background())
	require.NoError(t, err)
	_, err = cam.Capture(context.Background())
	assert.ErrorIs(t, err, hwErr)
}

func TestSim_CancelledContext(t *testing.T) {
	cam := NewSim(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cam.Capture(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), cam.Captured())
}

func TestMonotonicClock(t *testing.T) {
	c := NewMonotonicClock()
	a := c.NowUS()
	b := c.NowUS()
	assert.GreaterOrEqual(t, b, a)
}

func TestVirtualClock(t *testing.T) {
	clock := NewVirtualClock(100 * time.Millisecond)

	assert.Equal(t, int64(0), clock.NowUS())
	assert.Equal(t, int64(100_000), clock.NowUS())
	assert.Equal(t, int64(200_000), clock.NowUS())
}
