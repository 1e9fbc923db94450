// Package recorder holds the frame pairs of a running session and persists
// them when the session ends.
//
// Thread-safety model:
//   - Append/AppendOrphan: called from the capture loop goroutine
//   - Counts/Snapshot: called from any goroutine (status queries)
//   - FinalizeDirection: called by the manager, including through loop callbacks
//   - SaveSession: called once by the manager when the session ends
//
// Every method takes the same mutex. There is no unguarded field that one
// goroutine replaces while another reads it.
//
// INVARIANTS:
//   - Within a direction, pairs are appended in strictly increasing frame index
//   - A pair's camera and stimulus halves share one timestamp and one camera index
//   - Appended records are never modified or removed before save
//   - A finalized direction accepts no further records
//   - A direction is valid only if camera count == stimulus count and it ran to completion
package recorder
