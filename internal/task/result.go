package task

import "time"

// Status is the terminal state of a command.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Payload is the handler-specific body of a successful result.
type Payload interface {
	// Summary is the human-readable message of the payload.
	Summary() string
}

// Result is the outcome of one command. Payload is set only on success and
// Err only on error.
type Result struct {
	Status    Status
	Intent    Intent
	Payload   Payload
	Err       error
	Message   string
	Timestamp time.Time
}

// Succeeded builds a success result around p.
func Succeeded(intent Intent, p Payload, at time.Time) Result {
	return Result{
		Status:    StatusSuccess,
		Intent:    intent,
		Payload:   p,
		Message:   p.Summary(),
		Timestamp: at,
	}
}

// Failed builds an error result. An empty message defaults to err's text.
func Failed(intent Intent, err error, message string, at time.Time) Result {
	if message == "" && err != nil {
		message = err.Error()
	}
	return Result{
		Status:    StatusError,
		Intent:    intent,
		Err:       err,
		Message:   message,
		Timestamp: at,
	}
}

// OK reports whether the command succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }
