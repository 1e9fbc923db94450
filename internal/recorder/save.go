package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/stimsync/internal/config"
	"github.com/roach88/stimsync/internal/fault"
	"github.com/roach88/stimsync/internal/stimulus"
	"github.com/roach88/stimsync/internal/store"
	"github.com/roach88/stimsync/internal/synctrack"
)

// SaveInfo carries session facts the recorder does not observe itself.
type SaveInfo struct {
	// EndReason is "completed", "stopped" or a fault description.
	EndReason string
	// Sync is the final capture cadence snapshot.
	Sync synctrack.Stats
}

// SaveResult is the outcome of persisting one session.
type SaveResult struct {
	SessionID  string             `json:"session_id"`
	Dir        string             `json:"dir"`
	Directions []DirectionSummary `json:"directions"`
	Err        error              `json:"-"`
}

// OK reports whether the session was persisted.
func (r SaveResult) OK() bool {
	return r.Err == nil
}

func sessionDir(root, id string) string {
	return filepath.Join(root, id)
}

// SaveSession persists every recorded direction and the session descriptor.
//
// Directions not yet finalized are finalized as aborted. The session is
// written to a staging directory and renamed into place, so a session
// directory either holds a complete save or does not exist.
//
// Invalid directions follow the configured policy: mark stores them flagged,
// exclude stores only their summary, reject fails the save.
//
// Any failure returns a PersistenceFailure fault; the same error is set on
// the returned result.
func (r *Recorder) SaveSession(ctx context.Context, info SaveInfo) (SaveResult, error) {
	const op = "save_session"

	r.mu.Lock()
	if r.saved {
		r.mu.Unlock()
		err := fault.New(fault.KindPersistence, op, "session already saved")
		return SaveResult{SessionID: r.sessionID, Err: err}, err
	}
	for _, d := range r.order {
		if !d.finalized {
			r.finalizeLocked(d, "not finalized before save")
		}
	}
	dirs := make([]direction, len(r.order))
	for i, d := range r.order {
		dirs[i] = *d
	}
	r.saved = true
	r.mu.Unlock()

	policy := r.cfg.Recorder.InvalidPolicy
	result := SaveResult{SessionID: r.sessionID, Dir: r.Dir()}
	for i := range dirs {
		s := dirs[i].summary()
		if dirs[i].valid || policy == config.PolicyMark {
			s.PairsStored = len(dirs[i].pairs)
		}
		result.Directions = append(result.Directions, s)
	}

	fail := func(msg string, err error) (SaveResult, error) {
		ferr := fault.Wrap(fault.KindPersistence, op, msg, err)
		slog.Error("session save failed",
			"session_id", r.sessionID,
			"error", ferr,
		)
		result.Dir = ""
		result.Err = ferr
		return result, ferr
	}

	if policy == config.PolicyReject {
		for _, d := range dirs {
			if !d.valid {
				return fail("invalid direction rejected",
					&fault.Error{Kind: fault.KindIntegrity, Op: op, Direction: d.label, Message: d.reason})
			}
		}
	}

	if err := r.write(ctx, dirs, result.Directions, info); err != nil {
		return fail("write session", err)
	}

	slog.Info("session saved",
		"session_id", r.sessionID,
		"dir", result.Dir,
		"directions", len(dirs),
	)
	return result, nil
}

// write stages the session and renames it into place.
func (r *Recorder) write(ctx context.Context, dirs []direction, summaries []DirectionSummary, info SaveInfo) (err error) {
	final := r.Dir()
	if _, statErr := os.Stat(final); statErr == nil {
		return fmt.Errorf("session directory %s already exists", final)
	}
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}
	staging := final + ".partial"
	if err := os.Mkdir(staging, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(staging)
		}
	}()

	cfgHash, err := r.cfg.Hash()
	if err != nil {
		return fmt.Errorf("hash config: %w", err)
	}

	if err := r.writePairs(ctx, staging, cfgHash, dirs, summaries); err != nil {
		return err
	}

	desc := &Descriptor{
		Version:            DescriptorVersion,
		SessionID:          r.sessionID,
		StartedAt:          r.startedAt.UTC().Format(time.RFC3339Nano),
		EndReason:          info.EndReason,
		ConfigHash:         cfgHash,
		FramesPerDirection: r.framesPerD,
		Config:             r.cfg,
		Sync:               info.Sync,
		Directions:         summaries,
	}
	if err := writeDescriptor(staging, desc); err != nil {
		return err
	}

	if err := os.Rename(staging, final); err != nil {
		return fmt.Errorf("rename staging directory: %w", err)
	}
	return nil
}

func (r *Recorder) writePairs(ctx context.Context, staging, cfgHash string, dirs []direction, summaries []DirectionSummary) error {
	st, err := store.Open(filepath.Join(staging, PairsFile))
	if err != nil {
		return err
	}
	defer st.Close()

	err = st.WriteSession(ctx, store.SessionRow{
		ID:         r.sessionID,
		StartedAt:  r.startedAt.UTC().Format(time.RFC3339Nano),
		ConfigHash: cfgHash,
		FrameRate:  r.cfg.FrameRate,
		Policy:     r.cfg.Recorder.InvalidPolicy,
	})
	if err != nil {
		return err
	}

	keepInvalid := r.cfg.Recorder.InvalidPolicy == config.PolicyMark
	for i, d := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := summaries[i]
		row := store.DirectionRow{
			SessionID:     r.sessionID,
			Label:         s.Label,
			Ordinal:       s.Ordinal,
			Valid:         s.Valid,
			InvalidReason: s.InvalidReason,
			CameraCount:   s.CameraCount,
			StimulusCount: s.StimulusCount,
			PairsStored:   s.PairsStored,
		}
		var pairs []store.PairRow
		var orphans []store.OrphanRow
		if d.valid || keepInvalid {
			pairs = make([]store.PairRow, len(d.pairs))
			for j, p := range d.pairs {
				pairs[j] = pairRow(p)
			}
			orphans = make([]store.OrphanRow, len(d.orphans))
			for j, o := range d.orphans {
				orphans[j] = store.OrphanRow{Direction: d.label, CameraFrameIndex: o.Index, TimestampUS: o.TimestampUS}
			}
		}
		if err := st.WriteDirection(ctx, row, pairs, orphans); err != nil {
			return err
		}
	}
	return nil
}

// pairRow flattens a Pair into its stored form.
func pairRow(p Pair) store.PairRow {
	m := p.Stimulus
	row := store.PairRow{
		Direction:        m.Direction,
		FrameIndex:       m.FrameIndex,
		CameraFrameIndex: p.Camera.Index,
		TimestampUS:      p.TimestampUS(),
		Cycle:            m.Cycle,
		Baseline:         m.Baseline,
		AngleState:       m.Angle.State().String(),
		AngleReason:      m.Angle.Reason(),
		Complete:         m.Complete,
		StimulusHash:     m.Hash,
		Seq:              p.Seq,
	}
	if v, ok := m.Angle.Value(); ok {
		row.AngleValue = &v
	}
	return row
}

// MetadataFromRow rebuilds stimulus metadata from a stored pair.
func MetadataFromRow(row store.PairRow) (stimulus.Metadata, error) {
	var value float64
	if row.AngleValue != nil {
		value = *row.AngleValue
	}
	angle, err := stimulus.AngleFromParts(row.AngleState, value, row.AngleValue != nil, row.AngleReason)
	if err != nil {
		return stimulus.Metadata{}, fmt.Errorf("pair %s[%d]: %w", row.Direction, row.FrameIndex, err)
	}
	return stimulus.Metadata{
		FrameIndex:       row.FrameIndex,
		CameraFrameIndex: row.CameraFrameIndex,
		Direction:        row.Direction,
		Cycle:            row.Cycle,
		Baseline:         row.Baseline,
		Angle:            angle,
		Complete:         row.Complete,
		Hash:             row.StimulusHash,
	}, nil
}
