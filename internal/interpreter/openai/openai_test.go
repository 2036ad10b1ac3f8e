package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/qia/internal/config"
	"github.com/nadzzz/qia/internal/interpreter"
	"github.com/nadzzz/qia/internal/task"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "RIFF", string(data))
		_, _ = w.Write([]byte(`{"text":"turn on the light","language":"english"}`))
	})
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		label := "smart_home"
		if req.Messages[1].Content == "fail" {
			http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
			return
		}
		if req.Messages[1].Content == "chatty" {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"I think it is general."}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"task\":\"` + label + `\"}"}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newInterpreter(srv *httptest.Server) *Interpreter {
	return New(config.OpenAIConfig{
		APIKey:             "sk-test",
		BaseURL:            srv.URL + "/v1/",
		TranscriptionModel: "whisper-1",
		CompletionModel:    "gpt-4",
	})
}

func TestTranscribe(t *testing.T) {
	i := newInterpreter(newServer(t))
	res, err := i.Transcribe(context.Background(), []byte("RIFF"), "audio/wav", interpreter.TranscribeOpts{})
	require.NoError(t, err)
	assert.Equal(t, "turn on the light", res.Text)
	assert.Equal(t, "en", res.Language)
}

func TestClassify(t *testing.T) {
	i := newInterpreter(newServer(t))
	label, err := i.Classify(context.Background(), "turn on the light", task.EmptyContext("alice"))
	require.NoError(t, err)
	assert.Equal(t, "smart_home", label)
}

func TestClassifyErrors(t *testing.T) {
	i := newInterpreter(newServer(t))
	_, err := i.Classify(context.Background(), "fail", task.EmptyContext("alice"))
	assert.ErrorContains(t, err, "status 503")

	_, err = i.Classify(context.Background(), "chatty", task.EmptyContext("alice"))
	assert.ErrorContains(t, err, "no task label")
}
