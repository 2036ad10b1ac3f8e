// Package openai implements the Interpreter interface using OpenAI's APIs.
//
// Speech-to-text goes through the Audio Transcription API (Whisper), and the
// Chat Completions API classifies the text into a task label.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nadzzz/qia/internal/config"
	"github.com/nadzzz/qia/internal/interpreter"
	"github.com/nadzzz/qia/internal/task"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Interpreter uses OpenAI APIs for transcription and classification.
type Interpreter struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

// New creates a new OpenAI interpreter from config.
func New(cfg config.OpenAIConfig) *Interpreter {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Interpreter{cfg: cfg, client: &http.Client{}}
}

// Name returns the backend identifier.
func (i *Interpreter) Name() string { return "openai" }

// Transcribe sends audio to the OpenAI Transcription API. The detected
// language comes back as a full name ("english") and is normalised to
// ISO-639-1.
func (i *Interpreter) Transcribe(ctx context.Context, audio []byte, contentType string, opts interpreter.TranscribeOpts) (*interpreter.TranscribeResult, error) {
	form, err := interpreter.NewAudioForm("file", contentType, audio)
	if err != nil {
		return nil, err
	}
	model, lang := opts.Model, opts.Language
	if model == "" {
		model = i.cfg.TranscriptionModel
	}
	if lang == "" {
		lang = i.cfg.Language
	}
	form.Set("model", model)
	form.Set("language", lang)
	form.Set("prompt", opts.Prompt)
	form.Set("response_format", "verbose_json")

	body, ct := form.Body()
	data, err := interpreter.Post(ctx, i.client, "transcription", i.cfg.BaseURL+"/audio/transcriptions", ct, i.cfg.APIKey, body)
	if err != nil {
		return nil, err
	}
	res, err := interpreter.ParseTranscription(data)
	if err != nil {
		return nil, err
	}
	slog.Debug("transcription complete", "text_length", len(res.Text), "language", res.Language)
	return res, nil
}

// Classify asks the Chat Completions API for the task label of text. The
// system prompt carries the user's preferences, frequent commands and most
// recent interactions.
func (i *Interpreter) Classify(ctx context.Context, text string, uc task.UserContext) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: i.cfg.CompletionModel,
		Messages: []chatMessage{
			{Role: "system", Content: interpreter.SystemPrompt(uc)},
			{Role: "user", Content: text},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
		Temperature:    0.2,
		MaxTokens:      50,
	})
	if err != nil {
		return "", err
	}

	data, err := interpreter.Post(ctx, i.client, "chat", i.cfg.BaseURL+"/chat/completions", "application/json", i.cfg.APIKey, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	content := interpreter.ReplyContent(data)
	if content == "" {
		return "", errors.New("no choices returned from chat API")
	}
	label, err := interpreter.ParseLabel(content)
	if err != nil {
		return "", err
	}
	slog.Debug("classification complete", "label", label)
	return label, nil
}

// Close is a no-op for the OpenAI interpreter.
func (i *Interpreter) Close() error { return nil }

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}
