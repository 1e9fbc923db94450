// Package store provides SQLite-backed persistence for recorded sessions.
//
// Each session directory holds one pairs.db written by this package:
//   - sessions: one row of session metadata
//   - directions: per-direction summary (counts, validity, stored pairs)
//   - frame_pairs: one row per camera/stimulus pair, keyed by frame index
//   - orphan_captures: camera frames that never received a stimulus frame
//
// # Integrity
//
// A direction is written in a single transaction: its summary row, all of its
// pairs and orphans commit together or not at all. Writes never use
// ON CONFLICT DO NOTHING; a duplicate frame index is an error, not a no-op.
//
// The angle columns preserve the tri-state angle: angle_value is NULL unless
// angle_state is 'present', enforced by a CHECK constraint.
//
// All reads order by frame_index ASC so regenerated sequences compare
// position by position.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: scientific data is fsynced on commit
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
