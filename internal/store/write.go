package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SessionRow is the per-session metadata row.
type SessionRow struct {
	ID         string
	StartedAt  string // RFC 3339, UTC
	ConfigHash string
	FrameRate  float64
	Policy     string
}

// DirectionRow summarises one direction of a session.
type DirectionRow struct {
	SessionID     string
	Label         string
	Ordinal       int
	Valid         bool
	InvalidReason string
	CameraCount   int
	StimulusCount int
	PairsStored   int
}

// PairRow is one persisted camera/stimulus pair.
//
// AngleValue is nil unless AngleState is "present".
type PairRow struct {
	Direction        string
	FrameIndex       int
	CameraFrameIndex uint64
	TimestampUS      int64
	Cycle            int
	Baseline         bool
	AngleState       string
	AngleValue       *float64
	AngleReason      string
	Complete         bool
	StimulusHash     string
	Seq              int64
}

// OrphanRow is a captured camera frame that has no stimulus partner.
type OrphanRow struct {
	Direction        string
	CameraFrameIndex uint64
	TimestampUS      int64
}

// WriteSession inserts the session metadata row.
func (s *Store) WriteSession(ctx context.Context, row SessionRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, config_hash, frame_rate, policy)
		VALUES (?, ?, ?, ?, ?)
	`, row.ID, row.StartedAt, row.ConfigHash, row.FrameRate, row.Policy)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", row.ID, err)
	}
	return nil
}

// WriteDirection stores a direction summary together with its pairs and
// orphans in one transaction. Either everything commits or nothing does.
//
// dir.PairsStored must equal len(pairs).
func (s *Store) WriteDirection(ctx context.Context, dir DirectionRow, pairs []PairRow, orphans []OrphanRow) (err error) {
	if dir.PairsStored != len(pairs) {
		return fmt.Errorf("direction %s: pairs_stored=%d but %d pairs supplied",
			dir.Label, dir.PairsStored, len(pairs))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO directions (
			session_id, label, ordinal, valid, invalid_reason,
			camera_count, stimulus_count, pairs_stored
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, dir.SessionID, dir.Label, dir.Ordinal, boolToInt(dir.Valid), dir.InvalidReason,
		dir.CameraCount, dir.StimulusCount, dir.PairsStored)
	if err != nil {
		return fmt.Errorf("insert direction %s: %w", dir.Label, err)
	}

	if err = insertPairs(ctx, tx, dir.SessionID, pairs); err != nil {
		return err
	}
	if err = insertOrphans(ctx, tx, dir.SessionID, orphans); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit direction %s: %w", dir.Label, err)
	}
	return nil
}

func insertPairs(ctx context.Context, tx *sql.Tx, sessionID string, pairs []PairRow) error {
	if len(pairs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO frame_pairs (
			session_id, direction, frame_index, camera_frame_index, timestamp_us,
			cycle, baseline, angle_state, angle_value, angle_reason,
			complete, stimulus_hash, seq
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare pair insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range pairs {
		var angle any
		if p.AngleValue != nil {
			angle = *p.AngleValue
		}
		_, err := stmt.ExecContext(ctx,
			sessionID, p.Direction, p.FrameIndex, int64(p.CameraFrameIndex), p.TimestampUS,
			p.Cycle, boolToInt(p.Baseline), p.AngleState, angle, p.AngleReason,
			boolToInt(p.Complete), p.StimulusHash, p.Seq,
		)
		if err != nil {
			return fmt.Errorf("insert pair %s[%d]: %w", p.Direction, p.FrameIndex, err)
		}
	}
	return nil
}

func insertOrphans(ctx context.Context, tx *sql.Tx, sessionID string, orphans []OrphanRow) error {
	for _, o := range orphans {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orphan_captures (session_id, direction, camera_frame_index, timestamp_us)
			VALUES (?, ?, ?, ?)
		`, sessionID, o.Direction, int64(o.CameraFrameIndex), o.TimestampUS)
		if err != nil {
			return fmt.Errorf("insert orphan %s@%d: %w", o.Direction, o.CameraFrameIndex, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
