package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID has no row.
var ErrSessionNotFound = errors.New("session not found")

// ReadSession returns the metadata row for id.
func (s *Store) ReadSession(ctx context.Context, id string) (SessionRow, error) {
	var row SessionRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, config_hash, frame_rate, policy
		FROM sessions WHERE id = ?
	`, id).Scan(&row.ID, &row.StartedAt, &row.ConfigHash, &row.FrameRate, &row.Policy)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRow{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return SessionRow{}, fmt.Errorf("query session %s: %w", id, err)
	}
	return row, nil
}

// ReadDirections returns the direction summaries of a session in
// acquisition order.
func (s *Store) ReadDirections(ctx context.Context, sessionID string) ([]DirectionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, label, ordinal, valid, invalid_reason,
		       camera_count, stimulus_count, pairs_stored
		FROM directions
		WHERE session_id = ?
		ORDER BY ordinal ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query directions: %w", err)
	}
	defer rows.Close()

	var out []DirectionRow
	for rows.Next() {
		var d DirectionRow
		var valid int
		if err := rows.Scan(&d.SessionID, &d.Label, &d.Ordinal, &valid, &d.InvalidReason,
			&d.CameraCount, &d.StimulusCount, &d.PairsStored); err != nil {
			return nil, fmt.Errorf("scan direction: %w", err)
		}
		d.Valid = valid == 1
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReadPairs returns the stored pairs of one direction ordered by frame index.
func (s *Store) ReadPairs(ctx context.Context, sessionID, direction string) ([]PairRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT direction, frame_index, camera_frame_index, timestamp_us,
		       cycle, baseline, angle_state, angle_value, angle_reason,
		       complete, stimulus_hash, seq
		FROM frame_pairs
		WHERE session_id = ? AND direction = ?
		ORDER BY frame_index ASC
	`, sessionID, direction)
	if err != nil {
		return nil, fmt.Errorf("query pairs: %w", err)
	}
	defer rows.Close()

	var out []PairRow
	for rows.Next() {
		var p PairRow
		var camIdx int64
		var baseline, complete int
		var angle sql.NullFloat64
		if err := rows.Scan(&p.Direction, &p.FrameIndex, &camIdx, &p.TimestampUS,
			&p.Cycle, &baseline, &p.AngleState, &angle, &p.AngleReason,
			&complete, &p.StimulusHash, &p.Seq); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		p.CameraFrameIndex = uint64(camIdx)
		p.Baseline = baseline == 1
		p.Complete = complete == 1
		if angle.Valid {
			v := angle.Float64
			p.AngleValue = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReadOrphans returns orphan captures of one direction ordered by camera index.
func (s *Store) ReadOrphans(ctx context.Context, sessionID, direction string) ([]OrphanRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT direction, camera_frame_index, timestamp_us
		FROM orphan_captures
		WHERE session_id = ? AND direction = ?
		ORDER BY camera_frame_index ASC
	`, sessionID, direction)
	if err != nil {
		return nil, fmt.Errorf("query orphans: %w", err)
	}
	defer rows.Close()

	var out []OrphanRow
	for rows.Next() {
		var o OrphanRow
		var camIdx int64
		if err := rows.Scan(&o.Direction, &camIdx, &o.TimestampUS); err != nil {
			return nil, fmt.Errorf("scan orphan: %w", err)
		}
		o.CameraFrameIndex = uint64(camIdx)
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountPairs returns the number of stored pairs for a direction.
func (s *Store) CountPairs(ctx context.Context, sessionID, direction string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM frame_pairs WHERE session_id = ? AND direction = ?
	`, sessionID, direction).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pairs: %w", err)
	}
	return n, nil
}
