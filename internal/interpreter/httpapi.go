package interpreter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// maxErrorBody caps how much of a failed reply ends up in an error.
const maxErrorBody = 2048

// AudioForm is a multipart body carrying one audio file plus form fields.
type AudioForm struct {
	buf bytes.Buffer
	w   *multipart.Writer
}

// NewAudioForm writes audio under field, named after its content type.
func NewAudioForm(field, contentType string, audio []byte) (*AudioForm, error) {
	f := &AudioForm{}
	f.w = multipart.NewWriter(&f.buf)
	part, err := f.w.CreateFormFile(field, "audio"+ExtFromContentType(contentType))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("writing audio: %w", err)
	}
	return f, nil
}

// Set adds a form field; empty values are skipped.
func (f *AudioForm) Set(name, value string) {
	if value != "" {
		_ = f.w.WriteField(name, value)
	}
}

// Body closes the form and returns the encoded body and its content type.
func (f *AudioForm) Body() (io.Reader, string) {
	_ = f.w.Close()
	return &f.buf, f.w.FormDataContentType()
}

// Post sends body to url and returns the reply of a 200 response. op names
// the call in errors.
func Post(ctx context.Context, client *http.Client, op, url, contentType, bearer string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%s failed (status %d): %s", op, resp.StatusCode, msg)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s reply: %w", op, err)
	}
	return data, nil
}

// ParseTranscription reads a Whisper-style {"text", "language"} reply.
func ParseTranscription(data []byte) (*TranscribeResult, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decoding transcription: invalid JSON")
	}
	reply := gjson.ParseBytes(data)
	return &TranscribeResult{
		Text:     strings.TrimSpace(reply.Get("text").String()),
		Language: NormalizeLanguage(reply.Get("language").String()),
	}, nil
}

// ReplyContent pulls the model text out of an OpenAI-compatible
// ({"choices":[{"message":{"content":...}}]}) or Ollama ({"response":...})
// reply. Anything else is returned as is.
func ReplyContent(data []byte) string {
	if !gjson.ValidBytes(data) {
		return string(data)
	}
	if c := gjson.GetBytes(data, "choices.0.message.content"); c.Exists() {
		return c.String()
	}
	if r := gjson.GetBytes(data, "response"); r.Exists() {
		return r.String()
	}
	return string(data)
}
