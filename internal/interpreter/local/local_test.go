package local

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/qia/internal/config"
	"github.com/nadzzz/qia/internal/interpreter"
	"github.com/nadzzz/qia/internal/task"
)

func TestClassifyOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3", body["model"])
		assert.Equal(t, "json", body["format"])
		assert.Equal(t, "remind me tomorrow", body["prompt"])
		_, _ = w.Write([]byte(`{"response":"{\"task\":\"schedule\"}","done":true}`))
	}))
	defer srv.Close()

	i := New(config.LocalConfig{LLMEndpoint: srv.URL + "/api/generate"})
	label, err := i.Classify(context.Background(), "remind me tomorrow", task.EmptyContext("bob"))
	require.NoError(t, err)
	assert.Equal(t, "schedule", label)
}

func TestClassifyChatCompletions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "messages")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"task\":\"code_assist\"}"}}]}`))
	}))
	defer srv.Close()

	i := New(config.LocalConfig{LLMEndpoint: srv.URL + "/v1/chat/completions", LLMModel: "qwen"})
	label, err := i.Classify(context.Background(), "fix my function", task.EmptyContext("bob"))
	require.NoError(t, err)
	assert.Equal(t, "code_assist", label)
}

func TestTranscribeASR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "transcribe", r.URL.Query().Get("task"))
		assert.Equal(t, "fr", r.URL.Query().Get("language"))
		assert.Equal(t, "true", r.URL.Query().Get("vad_filter"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("audio_file")
		require.NoError(t, err)
		_, _ = w.Write([]byte(`{"text":" allume la lumière ","language":"fr"}`))
	}))
	defer srv.Close()

	i := New(config.LocalConfig{WhisperEndpoint: srv.URL + "/asr", WhisperType: "asr", VADFilter: true, Language: "fr"})
	res, err := i.Transcribe(context.Background(), []byte("OggS"), "audio/ogg", interpreter.TranscribeOpts{})
	require.NoError(t, err)
	assert.Equal(t, "allume la lumière", res.Text)
	assert.Equal(t, "fr", res.Language)
}

func TestTranscribeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no model loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	i := New(config.LocalConfig{WhisperEndpoint: srv.URL})
	_, err := i.Transcribe(context.Background(), []byte("RIFF"), "audio/wav", interpreter.TranscribeOpts{})
	assert.ErrorContains(t, err, "status 500")
}
