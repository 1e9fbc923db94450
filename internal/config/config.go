// Package config loads and validates acquisition configuration.
//
// Configuration is read once when a session starts and is the single source
// of truth for frame rate, direction order, cycle count and durations. No
// other component recomputes or hardcodes these values.
//
// Files are CUE (plain JSON is valid CUE) and are unified with the embedded
// #Config schema, which supplies defaults and rejects unknown fields.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/roach88/stimsync/internal/canon"
)

// Invalid-direction policies applied at session save.
const (
	PolicyMark    = "mark"
	PolicyExclude = "exclude"
	PolicyReject  = "reject"
)

// Config is the acquisition configuration for one session.
type Config struct {
	FrameRate          float64   `json:"frame_rate" yaml:"frame_rate"`
	Directions         []string  `json:"directions" yaml:"directions"`
	Cycles             int       `json:"cycles" yaml:"cycles"`
	DirectionDurationS float64   `json:"direction_duration_s" yaml:"direction_duration_s"`
	BaselineFrames     int       `json:"baseline_frames" yaml:"baseline_frames"`
	StopTimeoutS       float64   `json:"stop_timeout_s" yaml:"stop_timeout_s"`
	OutputDir          string    `json:"output_dir" yaml:"output_dir"`
	Stimulus           *Stimulus `json:"stimulus,omitempty" yaml:"stimulus,omitempty"`
	Recorder           Recorder  `json:"recorder" yaml:"recorder"`
}

// Stimulus holds the geometry of the generated stimulus frames.
type Stimulus struct {
	WidthPx     int     `json:"width_px" yaml:"width_px"`
	HeightPx    int     `json:"height_px" yaml:"height_px"`
	BarWidthPx  int     `json:"bar_width_px" yaml:"bar_width_px"`
	AzimuthDeg  float64 `json:"azimuth_deg" yaml:"azimuth_deg"`
	AltitudeDeg float64 `json:"altitude_deg" yaml:"altitude_deg"`
}

// Recorder holds DataRecorder limits and policy.
type Recorder struct {
	MaxPendingRecords int    `json:"max_pending_records" yaml:"max_pending_records"`
	InvalidPolicy     string `json:"invalid_policy" yaml:"invalid_policy"`
}

// Period returns the capture period derived from FrameRate.
func (c *Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.FrameRate)
}

// StopTimeout returns the bound on waiting for the loop to drain.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutS * float64(time.Second))
}

// FramesPerCycle returns the number of sweep frames in one cycle of a direction.
// DirectionDurationS covers all cycles of a direction.
func (c *Config) FramesPerCycle() int {
	return int(math.Round(c.DirectionDurationS * c.FrameRate / float64(c.Cycles)))
}

// FramesPerDirection returns baseline plus sweep frames for one direction.
func (c *Config) FramesPerDirection() int {
	return c.BaselineFrames + c.FramesPerCycle()*c.Cycles
}

// Validate checks constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.FrameRate <= 0 || math.IsNaN(c.FrameRate) || math.IsInf(c.FrameRate, 0) {
		return fmt.Errorf("frame_rate must be a positive finite number, got %v", c.FrameRate)
	}
	if len(c.Directions) == 0 {
		return fmt.Errorf("directions must be non-empty")
	}
	seen := make(map[string]bool, len(c.Directions))
	for _, d := range c.Directions {
		if seen[d] {
			return fmt.Errorf("duplicate direction %q", d)
		}
		seen[d] = true
	}
	if c.Cycles < 1 {
		return fmt.Errorf("cycles must be >= 1, got %d", c.Cycles)
	}
	if c.FramesPerCycle() < 1 {
		return fmt.Errorf("direction_duration_s=%v at frame_rate=%v yields no frames per cycle", c.DirectionDurationS, c.FrameRate)
	}
	if c.StopTimeoutS <= 0 {
		return fmt.Errorf("stop_timeout_s must be positive, got %v", c.StopTimeoutS)
	}
	switch c.Recorder.InvalidPolicy {
	case PolicyMark, PolicyExclude, PolicyReject:
	default:
		return fmt.Errorf("unknown invalid_policy %q", c.Recorder.InvalidPolicy)
	}
	if c.Recorder.MaxPendingRecords < 1 {
		return fmt.Errorf("max_pending_records must be >= 1")
	}
	if s := c.Stimulus; s != nil {
		if s.BarWidthPx > s.WidthPx || s.BarWidthPx > s.HeightPx {
			return fmt.Errorf("bar_width_px %d exceeds frame size %dx%d", s.BarWidthPx, s.WidthPx, s.HeightPx)
		}
	}
	return nil
}

// normalize applies NFC normalization to direction labels.
func (c *Config) normalize() {
	for i, d := range c.Directions {
		c.Directions[i] = canon.NormalizeLabel(d)
	}
}

// Canonical returns the configuration as a map suitable for canonical hashing.
// OutputDir is excluded: where a session is stored does not change its data.
func (c *Config) Canonical() map[string]any {
	m := map[string]any{
		"frame_rate":           c.FrameRate,
		"directions":           append([]string(nil), c.Directions...),
		"cycles":               c.Cycles,
		"direction_duration_s": c.DirectionDurationS,
		"baseline_frames":      c.BaselineFrames,
	}
	if s := c.Stimulus; s != nil {
		m["stimulus"] = map[string]any{
			"width_px":     s.WidthPx,
			"height_px":    s.HeightPx,
			"bar_width_px": s.BarWidthPx,
			"azimuth_deg":  s.AzimuthDeg,
			"altitude_deg": s.AltitudeDeg,
		}
	}
	return m
}

// Hash returns the content hash of Canonical().
func (c *Config) Hash() (string, error) {
	return canon.HashObject(canon.DomainConfig, c.Canonical())
}
