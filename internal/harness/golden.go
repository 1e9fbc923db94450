package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/stimsync/internal/canon"
)

// Snapshot renders the deterministic part of a result as canonical JSON:
// step outcomes, events, presented frames and the saved directions.
func Snapshot(name string, r *Result) ([]byte, error) {
	steps := make([]any, len(r.Steps))
	for i, s := range r.Steps {
		m := map[string]any{"index": s.Index, "action": s.Action}
		if s.Mode != "" {
			m["mode"] = s.Mode
		}
		if s.Error != "" {
			m["error"] = s.Error
		}
		steps[i] = m
	}

	events := make([]any, len(r.Events))
	for i, ev := range r.Events {
		m := map[string]any{"kind": ev.Kind}
		if ev.SessionID != "" {
			m["session_id"] = ev.SessionID
		}
		if ev.Direction != "" {
			m["direction"] = ev.Direction
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		events[i] = m
	}

	snap := map[string]any{
		"scenario":  name,
		"steps":     steps,
		"events":    events,
		"presented": r.Presented,
		"mode":      string(r.Status.Mode),
	}

	if r.Saved != nil {
		dirs := make([]any, len(r.Saved.Directions))
		for i, d := range r.Saved.Directions {
			dirs[i] = summaryFields(d)
		}
		snap["saved"] = map[string]any{
			"session_id":  r.Saved.SessionID,
			"end_reason":  r.Saved.EndReason,
			"config_hash": r.Saved.ConfigHash,
			"sync_frames": r.Saved.Sync.Frames,
			"fps_mean":    r.Saved.Sync.FPSMean,
			"directions":  dirs,
		}
	}

	return canon.Marshal(snap)
}

// RunWithGolden runs the scenario twice in separate output roots and
// requires byte-identical snapshots. The first run is written as the
// golden file under dir, the second is compared against it.
func RunWithGolden(t *testing.T, scenario *Scenario, dir string) *Result {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)

	first := runSnapshot(t, scenario)
	if err := g.Update(t, scenario.Name, first.snapshot); err != nil {
		t.Fatalf("write golden %s: %v", scenario.Name, err)
	}

	second := runSnapshot(t, scenario)
	g.Assert(t, scenario.Name, second.snapshot)
	return second.result
}

type snapshotRun struct {
	result   *Result
	snapshot []byte
}

func runSnapshot(t *testing.T, scenario *Scenario) snapshotRun {
	t.Helper()

	result, err := Run(context.Background(), scenario, t.TempDir())
	if err != nil {
		t.Fatalf("run %s: %v", scenario.Name, err)
	}
	snap, err := Snapshot(scenario.Name, result)
	if err != nil {
		t.Fatalf("snapshot %s: %v", scenario.Name, err)
	}
	return snapshotRun{result: result, snapshot: snap}
}
