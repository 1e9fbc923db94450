// Package acquisition runs synchronized camera/stimulus acquisition.
//
// A Manager is the mode state machine (Idle, Preview, Recording, Playback,
// Stopping, Error). It exposes exactly four operations to a command
// dispatcher: SetMode, Start, Stop and Status.
//
// For each active session the Manager owns one capture loop goroutine. In
// Recording every captured frame synchronously triggers generation of the
// matching stimulus frame; both halves share the capture timestamp and are
// appended to the session's recorder as one pair.
//
// Thread-safety model:
//   - Start/Stop/SetMode: serialized by a session lock (TryLock, never queued)
//   - Status: safe from any goroutine, never waits on the loop
//   - the loop goroutine touches shared state only through the recorder,
//     the tracker and the status mutex
//
// INVARIANTS:
//   - At most one session loop runs at a time
//   - Mode preconditions are checked before any goroutine starts or state changes
//   - The loop's only voluntary suspension is its pacer wait
//   - A session that ends (stop, completion or fault) is saved exactly once
package acquisition
