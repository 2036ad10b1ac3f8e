// Package transport defines the interface for pluggable command transports.
//
// Each transport (HTTP/WebSocket, gRPC, MQTT) accepts commands in its own
// wire format and hands them to the same Backend. The backend doesn't care
// how commands arrive; transports only work with the Backend contract.
package transport

import (
	"context"

	"github.com/nadzzz/qia/internal/message"
	"github.com/nadzzz/qia/internal/task"
)

// Backend is what transports call into. The orchestrator implements it.
type Backend interface {
	// Handle runs one typed command.
	Handle(ctx context.Context, cmd task.Command) task.Result

	// ProcessVoice transcribes audio, runs it and synthesizes the reply.
	ProcessVoice(ctx context.Context, user task.UserID, audio []byte, contentType string) (*message.VoiceResponse, error)

	// SetShortcut stores a shortcut; an empty expansion removes it.
	SetShortcut(ctx context.Context, user task.UserID, phrase, expansion string) error
}

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http", "mqtt").
	Name() string

	// Listen starts accepting commands and passes them to backend.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, backend Backend) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
