// Package fault defines the error taxonomy shared by the acquisition engine.
//
// Every failure that crosses a component boundary is a *Error carrying a Kind.
// Callers classify failures with Is (which walks wrapped chains and joined errors)
// instead of matching on message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes acquisition failures.
type Kind string

const (
	// KindConfiguration indicates a missing or invalid collaborator before start.
	// Non-retryable; the requested transition does not happen.
	KindConfiguration Kind = "CONFIGURATION_ERROR"

	// KindRuntimeFault indicates a capture, generation or back-pressure failure
	// during a running session. Fatal to the session.
	KindRuntimeFault Kind = "RUNTIME_FAULT"

	// KindIntegrity indicates a frame-count mismatch or aborted direction at finalize.
	KindIntegrity Kind = "INTEGRITY_VIOLATION"

	// KindPersistence indicates a session save failure. Always propagated.
	KindPersistence Kind = "PERSISTENCE_FAILURE"

	// KindInvalidTransition indicates a mode change that the state machine forbids,
	// including a change requested while another transition is in flight.
	KindInvalidTransition Kind = "INVALID_TRANSITION"

	// KindBusy indicates a session is already being started or is active.
	KindBusy Kind = "BUSY"
)

// Error is a classified failure.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op names the operation that failed (e.g. "start", "save_session").
	Op string

	// Message is a human-readable description.
	Message string

	// Direction is the affected direction label, if any.
	Direction string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Direction != "" {
		msg = fmt.Sprintf("%s (direction=%s)", msg, e.Direction)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an Error around an underlying cause.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Is reports whether err, or any error it wraps, is a *Error of the given kind.
// Every branch of an errors.Join tree is searched, as is the cause of each
// fault, so a persistence failure joined after a runtime fault is still found.
func Is(err error, kind Kind) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *Error:
		if e.Kind == kind {
			return true
		}
		return Is(e.Err, kind)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if Is(inner, kind) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return Is(e.Unwrap(), kind)
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
