// Package openai implements the TTS Synthesizer using the OpenAI speech API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nadzzz/qia/internal/config"
	"github.com/nadzzz/qia/internal/tts"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Synthesizer calls POST /audio/speech.
type Synthesizer struct {
	apiKey  string
	baseURL string
	model   string
	voice   string
	client  *http.Client
}

// New creates a synthesizer. The API key and base URL are shared with the
// OpenAI interpreter settings.
func New(api config.OpenAIConfig, cfg config.OpenAITTSConfig) *Synthesizer {
	base := strings.TrimRight(api.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "tts-1"
	}
	voice := cfg.Voice
	if voice == "" {
		voice = "alloy"
	}
	return &Synthesizer{
		apiKey:  api.APIKey,
		baseURL: base,
		model:   model,
		voice:   voice,
		client:  &http.Client{},
	}
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "openai" }

// Synthesize returns MP3 audio for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	voice := opts.Voice
	if voice == "" {
		voice = s.voice
	}
	body, err := json.Marshal(map[string]string{
		"model":           s.model,
		"voice":           voice,
		"input":           text,
		"response_format": "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating speech request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("speech failed (status %d): %s", resp.StatusCode, respBody)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading speech audio: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "audio/") {
		ct = "audio/mpeg"
	}
	return &tts.SynthesizeResult{Audio: audio, ContentType: ct, Channels: 1}, nil
}

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }
