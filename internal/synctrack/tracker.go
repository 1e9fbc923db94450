// Package synctrack records inter-frame capture intervals for quality assurance.
//
// In triggered mode the camera and stimulus timestamps are identical by
// construction, so there is nothing to correlate. The tracker only measures
// capture cadence (jitter and drift against the configured period). It never
// gates acquisition.
package synctrack

import (
	"math"
	"sync"
	"time"
)

const (
	// fpsStabilityThreshold: stable if FPS stddev < 15% of mean FPS.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold: stable if mean jitter < 20% of expected interval.
	jitterStabilityThreshold = 0.20

	// lateFactor: an interval longer than 1.5x the expected period counts as late.
	lateFactor = 1.5
)

// Stats is a snapshot of capture cadence.
type Stats struct {
	Frames           int           `json:"frames" yaml:"frames"`
	ExpectedInterval time.Duration `json:"expected_interval" yaml:"expected_interval"`
	MeanInterval     time.Duration `json:"mean_interval" yaml:"mean_interval"`
	FPSMean          float64       `json:"fps_mean" yaml:"fps_mean"`
	FPSMin           float64       `json:"fps_min" yaml:"fps_min"`
	FPSMax           float64       `json:"fps_max" yaml:"fps_max"`
	JitterMean       time.Duration `json:"jitter_mean" yaml:"jitter_mean"`
	JitterMax        time.Duration `json:"jitter_max" yaml:"jitter_max"`
	JitterStdDev     time.Duration `json:"jitter_stddev" yaml:"jitter_stddev"`
	LateFrames       int           `json:"late_frames" yaml:"late_frames"`
	NonMonotonic     int           `json:"non_monotonic" yaml:"non_monotonic"`
	IsStable         bool          `json:"is_stable" yaml:"is_stable"`
}

// Tracker accumulates running interval statistics. Observe is called from
// the capture loop, Snapshot from any goroutine.
type Tracker struct {
	mu       sync.Mutex
	expected time.Duration

	frames       int
	lastUS       int64
	intervals    int
	sumUS        float64
	minUS        float64
	maxUS        float64
	fpsSum       float64
	fpsSumSq     float64
	jitterSum    float64
	jitterSumSq  float64
	jitterMaxUS  float64
	late         int
	nonMonotonic int
}

// New creates a tracker for the given expected capture period.
func New(expected time.Duration) *Tracker {
	return &Tracker{expected: expected}
}

// Observe records a capture timestamp in microseconds.
func (t *Tracker) Observe(timestampUS int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.frames++
	if t.frames == 1 {
		t.lastUS = timestampUS
		return
	}

	interval := float64(timestampUS - t.lastUS)
	t.lastUS = timestampUS
	if interval <= 0 {
		t.nonMonotonic++
		return
	}

	t.intervals++
	t.sumUS += interval
	if t.intervals == 1 || interval < t.minUS {
		t.minUS = interval
	}
	if interval > t.maxUS {
		t.maxUS = interval
	}

	fps := 1e6 / interval
	t.fpsSum += fps
	t.fpsSumSq += fps * fps

	expectedUS := float64(t.expected.Microseconds())
	jitter := math.Abs(interval - expectedUS)
	t.jitterSum += jitter
	t.jitterSumSq += jitter * jitter
	if jitter > t.jitterMaxUS {
		t.jitterMaxUS = jitter
	}
	if expectedUS > 0 && interval > expectedUS*lateFactor {
		t.late++
	}
}

// Snapshot returns the current statistics.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		Frames:           t.frames,
		ExpectedInterval: t.expected,
		LateFrames:       t.late,
		NonMonotonic:     t.nonMonotonic,
	}
	if t.intervals == 0 {
		return s
	}

	n := float64(t.intervals)
	meanUS := t.sumUS / n
	s.MeanInterval = usToDuration(meanUS)
	s.FPSMean = 1e6 / meanUS
	s.FPSMin = 1e6 / t.maxUS
	s.FPSMax = 1e6 / t.minUS

	jitterMean := t.jitterSum / n
	s.JitterMean = usToDuration(jitterMean)
	s.JitterMax = usToDuration(t.jitterMaxUS)
	s.JitterStdDev = usToDuration(math.Sqrt(math.Max(0, t.jitterSumSq/n-jitterMean*jitterMean)))

	fpsMean := t.fpsSum / n
	fpsStdDev := math.Sqrt(math.Max(0, t.fpsSumSq/n-fpsMean*fpsMean))
	expectedUS := float64(t.expected.Microseconds())
	s.IsStable = fpsStdDev < fpsMean*fpsStabilityThreshold &&
		(expectedUS <= 0 || jitterMean < expectedUS*jitterStabilityThreshold)

	return s
}

func usToDuration(us float64) time.Duration {
	return time.Duration(math.Round(us * float64(time.Microsecond)))
}
