// Package tts defines the interface for text-to-speech synthesis.
//
// qia speaks the command result back in the language detected during
// transcription, so a voice request gets a voice answer.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("empty text for synthesis")

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Language is the ISO-639-1 code (e.g., "en", "fr", "es") to select the voice.
	Language string

	// Voice overrides automatic language-based voice selection.
	Voice string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Name returns the backend identifier (e.g., "piper", "openai").
	Name() string

	// Synthesize generates a complete audio file from text.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is the synthesized audio file (WAV, MP3, ...).
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/wav").
	ContentType string

	// SampleRate is the audio sample rate in Hz, when known.
	SampleRate int

	// Channels is the number of audio channels, when known.
	Channels int
}
