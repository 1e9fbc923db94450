package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stimsync/internal/config"
)

// SmallConfigSource is a fast configuration: two directions of ten frames
// each at 10 fps on a 16x12 raster.
const SmallConfigSource = `
frame_rate: 10
directions: ["LR", "RL"]
cycles: 1
direction_duration_s: 1
stop_timeout_s: 1
stimulus: {
	width_px: 16
	height_px: 12
	bar_width_px: 2
}
`

// ParseConfig parses CUE source against the config schema and fails the
// test on error.
func ParseConfig(tb testing.TB, src string) *config.Config {
	tb.Helper()
	cfg, err := config.Parse([]byte(src), "test.cue")
	require.NoError(tb, err)
	return cfg
}

// SmallConfig returns a parsed SmallConfigSource.
func SmallConfig(tb testing.TB) *config.Config {
	tb.Helper()
	return ParseConfig(tb, SmallConfigSource)
}
