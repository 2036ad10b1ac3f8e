// Package message defines the wire types exchanged with qia clients.
package message

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nadzzz/qia/internal/task"
)

// Envelope is the uniform JSON wrapper returned for every command.
type Envelope struct {
	// Status is "success" or "error".
	Status string `json:"status"`

	// TaskType is the resolved intent, empty when classification failed.
	TaskType string `json:"task_type"`

	// Result is the handler payload. Null on error.
	Result any `json:"result"`

	// Error is the failure reason. Null on success.
	Error *string `json:"error"`

	// Timestamp is when the command completed, ISO-8601 in UTC.
	Timestamp string `json:"timestamp"`
}

// NewEnvelope converts a task result into its wire shape. Exactly one of
// Result and Error is non-null.
func NewEnvelope(r task.Result) Envelope {
	env := Envelope{
		Status:    string(r.Status),
		TaskType:  string(r.Intent),
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if r.OK() {
		env.Result = r.Payload
		return env
	}
	msg := r.Message
	if msg == "" {
		msg = "unknown error"
	}
	env.Error = &msg
	return env
}

// Frame is one inbound session frame after decoding.
type Frame struct {
	Text string
	// Aux carries any other string fields of the frame.
	Aux map[string]string
}

// Frame decoding errors. ClientMessage maps each to its client-facing text.
var (
	ErrInvalidJSON = errors.New("invalid JSON format")
	ErrMissingText = errors.New("missing text field")
)

// Client-facing texts of the frame decoding errors.
const (
	InvalidJSONMessage = "Invalid JSON format"
	MissingTextMessage = "Missing text field"
)

// ClientMessage returns the text sent to a client for err.
func ClientMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidJSON):
		return InvalidJSONMessage
	case errors.Is(err, ErrMissingText):
		return MissingTextMessage
	}
	return err.Error()
}

// ParseFrame decodes a session text frame. The frame must be a JSON object
// carrying a non-empty string "text".
func ParseFrame(data []byte) (Frame, error) {
	if !gjson.ValidBytes(data) {
		return Frame{}, ErrInvalidJSON
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Frame{}, ErrInvalidJSON
	}
	text := root.Get("text")
	if text.Type != gjson.String || strings.TrimSpace(text.Str) == "" {
		return Frame{}, ErrMissingText
	}
	f := Frame{Text: text.Str}
	root.ForEach(func(key, value gjson.Result) bool {
		if key.Str == "text" || value.Type != gjson.String {
			return true
		}
		if f.Aux == nil {
			f.Aux = make(map[string]string)
		}
		f.Aux[key.Str] = value.Str
		return true
	})
	return f, nil
}

// ErrorFrame is the frame sent back for a frame that could not be processed.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorFrame builds an error frame carrying err's client message.
func NewErrorFrame(err error) ErrorFrame {
	return ErrorFrame{Type: "error", Message: ClientMessage(err)}
}

// Encode marshals v for a text frame.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return data, nil
}

// CommandRequest is the body of a typed command request.
type CommandRequest struct {
	// Text is the command to run.
	Text string `json:"text"`

	// Aux is optional caller-supplied context.
	Aux map[string]string `json:"aux,omitempty"`
}

// VoiceResponse is the outcome of a one-shot voice request.
type VoiceResponse struct {
	Status string `json:"status"`

	// Transcription is the text produced by speech-to-text.
	Transcription string `json:"transcription"`

	// Language is the ISO-639-1 code detected during transcription.
	Language string `json:"language,omitempty"`

	// Response is the command envelope.
	Response Envelope `json:"response"`

	// AudioResponse is the synthesized reply, base64-encoded. Null when
	// synthesis is disabled or failed.
	AudioResponse *string `json:"audio_response"`

	// AudioContentType is the MIME type of AudioResponse (e.g., "audio/wav").
	AudioContentType string `json:"audio_content_type,omitempty"`
}

// SetAudio base64-encodes raw audio bytes into AudioResponse.
func (r *VoiceResponse) SetAudio(audio []byte, contentType string) {
	if len(audio) == 0 {
		return
	}
	enc := base64.StdEncoding.EncodeToString(audio)
	r.AudioResponse = &enc
	r.AudioContentType = contentType
}

// ErrorResponse is the body of a failed HTTP request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
