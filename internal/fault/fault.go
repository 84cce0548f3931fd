// Package fault defines the error classes shared by the session state
// machines and stores. Callers test with errors.Is; wrapping sites add
// context with fmt.Errorf("...: %w", ...).
package fault

import "errors"

var (
	// ErrNotReady means the operation is invalid in the session's current state.
	ErrNotReady = errors.New("not ready")

	// ErrBusy means an operation of the same kind is already in flight.
	ErrBusy = errors.New("busy")

	// ErrNotFound means a referenced model, device or record is absent.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks retryable I/O and network failures.
	ErrTransient = errors.New("transient failure")

	// ErrInvalid marks malformed input, e.g. an empty audio buffer.
	ErrInvalid = errors.New("invalid input")
)
