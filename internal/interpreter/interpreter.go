// Package interpreter defines the speech-to-text and intent classification
// collaborators.
//
// An interpreter transcribes audio into text and classifies text into a
// task label. qia ships with three backends: OpenAI (cloud), Local
// (self-hosted via Ollama/whisper.cpp) and Keyword (offline rules).
package interpreter

import (
	"context"
	"errors"

	"github.com/nadzzz/qia/internal/task"
)

// ErrTranscriptionUnsupported is returned by backends that cannot transcribe.
var ErrTranscriptionUnsupported = errors.New("transcription not supported by this interpreter")

// TranscribeOpts controls transcription behavior.
type TranscribeOpts struct {
	// Language is the ISO-639-1 code (e.g., "en", "fr") to guide transcription.
	Language string

	// Prompt provides context to improve recognition of domain-specific terms.
	Prompt string

	// Model overrides the default transcription model.
	Model string
}

// TranscribeResult holds the output of audio transcription.
type TranscribeResult struct {
	// Text is the transcribed text.
	Text string

	// Language is the detected ISO-639-1 language code (e.g., "en", "fr", "es").
	Language string
}

// Interpreter is the interface for audio transcription and intent classification.
type Interpreter interface {
	// Name returns the backend identifier (e.g., "openai", "local").
	Name() string

	// Transcribe converts audio bytes to text.
	Transcribe(ctx context.Context, audio []byte, contentType string, opts TranscribeOpts) (*TranscribeResult, error)

	// Classify returns the task label of text. The label is not validated;
	// mapping it onto an intent is the caller's job.
	Classify(ctx context.Context, text string, uc task.UserContext) (string, error)

	// Close releases any resources held by the interpreter.
	Close() error
}
