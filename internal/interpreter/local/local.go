// Package local implements the Interpreter interface using self-hosted models.
//
// It supports any Whisper-compatible transcription endpoint (e.g., whisper.cpp
// server, faster-whisper) and any OpenAI-compatible chat endpoint (e.g., Ollama,
// vLLM, llama.cpp server).
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nadzzz/qia/internal/config"
	"github.com/nadzzz/qia/internal/interpreter"
	"github.com/nadzzz/qia/internal/task"
)

// Interpreter uses self-hosted models for transcription and classification.
type Interpreter struct {
	cfg    config.LocalConfig
	client *http.Client
}

// New creates a new local interpreter from config.
func New(cfg config.LocalConfig) *Interpreter {
	if cfg.WhisperType == "" {
		cfg.WhisperType = "openai"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "llama3"
	}
	return &Interpreter{cfg: cfg, client: &http.Client{}}
}

// Name returns the backend identifier.
func (i *Interpreter) Name() string { return "local" }

// Transcribe sends audio to the local Whisper-compatible endpoint.
// Two flavors exist:
//   - "openai": OpenAI-compatible API (whisper.cpp server, faster-whisper)
//   - "asr":    whisper-asr-webservice (POST /asr with query params)
func (i *Interpreter) Transcribe(ctx context.Context, audio []byte, contentType string, opts interpreter.TranscribeOpts) (*interpreter.TranscribeResult, error) {
	lang := opts.Language
	if lang == "" {
		lang = i.cfg.Language
	}
	asr := i.cfg.WhisperType == "asr"

	field := "file"
	if asr {
		field = "audio_file"
	}
	form, err := interpreter.NewAudioForm(field, contentType, audio)
	if err != nil {
		return nil, err
	}

	endpoint := i.cfg.WhisperEndpoint
	if asr {
		q := url.Values{"task": {"transcribe"}, "output": {"json"}, "encode": {"true"}}
		if lang != "" {
			q.Set("language", lang)
		}
		if opts.Prompt != "" {
			q.Set("initial_prompt", opts.Prompt)
		}
		if i.cfg.VADFilter {
			q.Set("vad_filter", "true")
		}
		endpoint += "?" + q.Encode()
	} else {
		form.Set("model", opts.Model)
		form.Set("language", lang)
		form.Set("response_format", "verbose_json")
	}

	body, ct := form.Body()
	data, err := interpreter.Post(ctx, i.client, "local transcription", endpoint, ct, "", body)
	if err != nil {
		return nil, err
	}
	res, err := interpreter.ParseTranscription(data)
	if err != nil {
		return nil, err
	}
	slog.Debug("local transcription complete", "text_length", len(res.Text), "language", res.Language)
	return res, nil
}

// Classify sends text to the local LLM endpoint. Ollama's /api/generate and
// OpenAI-compatible /v1/chat/completions are both understood.
func (i *Interpreter) Classify(ctx context.Context, text string, uc task.UserContext) (string, error) {
	prompt := interpreter.SystemPrompt(uc)

	var req any
	if strings.HasSuffix(i.cfg.LLMEndpoint, "/api/generate") {
		req = map[string]any{
			"model":  i.cfg.LLMModel,
			"system": prompt,
			"prompt": text,
			"stream": false,
			"format": "json",
		}
	} else {
		req = map[string]any{
			"model": i.cfg.LLMModel,
			"messages": []map[string]string{
				{"role": "system", "content": prompt},
				{"role": "user", "content": text},
			},
			"temperature": 0.2,
			"stream":      false,
		}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	data, err := interpreter.Post(ctx, i.client, "local LLM", i.cfg.LLMEndpoint, "application/json", "", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	content := interpreter.ReplyContent(data)
	if content == "" {
		return "", errors.New("empty response from local LLM")
	}
	label, err := interpreter.ParseLabel(content)
	if err != nil {
		return "", err
	}
	slog.Debug("local classification complete", "label", label)
	return label, nil
}

// Close is a no-op for the local interpreter.
func (i *Interpreter) Close() error { return nil }
