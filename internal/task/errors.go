package task

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes of the dispatch pipeline.
var (
	// ErrClassification is returned when the intent cannot be determined.
	ErrClassification = errors.New("could not identify task")

	// ErrUnknownIntent is returned when a classified intent has no handler.
	// This is a configuration defect, not a user error.
	ErrUnknownIntent = errors.New("unknown intent")

	// ErrHandler marks a handler-internal failure.
	ErrHandler = errors.New("handler failed")

	// ErrTransport marks an unreachable or failed external call.
	ErrTransport = errors.New("transport failed")

	// ErrContextLoad marks a user context that could not be loaded in time.
	ErrContextLoad = errors.New("context load failed")

	// ErrAuthMismatch is returned when the authenticated identity does not
	// match the identity claimed by the connection.
	ErrAuthMismatch = errors.New("identity mismatch")

	// ErrTimeout is returned when a bounded call exceeds its deadline.
	ErrTimeout = errors.New("timed out")
)

// HandlerError wraps a failure raised while a handler executed.
type HandlerError struct {
	Intent Intent
	Err    error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Intent, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrHandler) match any HandlerError.
func (e *HandlerError) Is(target error) bool { return target == ErrHandler }

// TransportError wraps a failed call to an external collaborator.
type TransportError struct {
	// Op names the call, e.g. "web search" or "device publish".
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransport) match any TransportError.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }
