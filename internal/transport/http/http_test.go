package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	_ "github.com/nadzzz/qia/docs"
	"github.com/nadzzz/qia/internal/auth"
	"github.com/nadzzz/qia/internal/message"
	"github.com/nadzzz/qia/internal/orchestrator"
	"github.com/nadzzz/qia/internal/session"
	"github.com/nadzzz/qia/internal/task"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type reply struct {
	Message string `json:"message"`
}

func (r reply) Summary() string { return r.Message }

type stubBackend struct {
	voiceErr error

	mu        sync.Mutex
	commands  []task.Command
	audio     []byte
	audioType string
	shortcuts map[string]string
}

func newBackend() *stubBackend {
	return &stubBackend{shortcuts: map[string]string{}}
}

func (b *stubBackend) Handle(_ context.Context, cmd task.Command) task.Result {
	b.mu.Lock()
	b.commands = append(b.commands, cmd)
	b.mu.Unlock()
	return task.Succeeded(task.IntentGeneral, reply{Message: "echo: " + cmd.Text}, time.Now())
}

func (b *stubBackend) ProcessVoice(ctx context.Context, user task.UserID, audio []byte, contentType string) (*message.VoiceResponse, error) {
	if b.voiceErr != nil {
		return nil, b.voiceErr
	}
	b.mu.Lock()
	b.audio, b.audioType = audio, contentType
	b.mu.Unlock()
	r := b.Handle(ctx, task.Command{User: user, Text: "transcribed"})
	resp := &message.VoiceResponse{Status: "success", Transcription: "transcribed", Response: message.NewEnvelope(r)}
	resp.SetAudio([]byte("RIFF"), "audio/wav")
	return resp, nil
}

func (b *stubBackend) SetShortcut(_ context.Context, user task.UserID, phrase, expansion string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := string(user) + "/" + phrase
	if expansion == "" {
		delete(b.shortcuts, key)
		return nil
	}
	b.shortcuts[key] = expansion
	return nil
}

func newServer(t *testing.T, b *stubBackend) (*httptest.Server, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(b)
	tr := New(Options{
		Auth:     auth.New(map[string]string{"tok-alice": "alice", "tok-bob": "bob"}),
		Sessions: sessions,
	})
	srv := httptest.NewServer(tr.Routes(b))
	t.Cleanup(func() {
		sessions.CloseAll(websocket.CloseGoingAway, "")
		srv.Close()
	})
	return srv, sessions
}

func post(t *testing.T, srv *httptest.Server, path, token, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCommand(t *testing.T) {
	b := newBackend()
	srv, _ := newServer(t, b)

	resp := post(t, srv, "/api/v1/command", "tok-alice", "application/json", []byte(`{"text":"hello","aux":{"device_id":"lamp"}}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decode[map[string]any](t, resp)
	assert.Equal(t, "success", env["status"])
	assert.Equal(t, "general", env["task_type"])
	assert.Nil(t, env["error"])

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.commands, 1)
	assert.Equal(t, task.UserID("alice"), b.commands[0].User)
	assert.Equal(t, "lamp", b.commands[0].Aux["device_id"])
}

func TestCommandRejections(t *testing.T) {
	srv, _ := newServer(t, newBackend())

	resp := post(t, srv, "/api/v1/command", "", "application/json", []byte(`{"text":"hello"}`))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, srv, "/api/v1/command", "tok-eve", "application/json", []byte(`{"text":"hello"}`))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, srv, "/api/v1/command", "tok-alice", "application/json", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid JSON format", decode[message.ErrorResponse](t, resp).Detail)

	resp = post(t, srv, "/api/v1/command", "tok-alice", "application/json", []byte(`{"text":"  "}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing text field", decode[message.ErrorResponse](t, resp).Detail)
}

func TestProcessVoiceMultipart(t *testing.T) {
	b := newBackend()
	srv, _ := newServer(t, b)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio_file", "clip.wav")
	require.NoError(t, err)
	_, _ = part.Write([]byte("RIFFdata"))
	require.NoError(t, mw.Close())

	resp := post(t, srv, "/api/v1/process-voice", "tok-bob", mw.FormDataContentType(), body.Bytes())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[message.VoiceResponse](t, resp)
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, "transcribed", got.Transcription)
	assert.Equal(t, "success", got.Response.Status)
	require.NotNil(t, got.AudioResponse)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, []byte("RIFFdata"), b.audio)
	assert.Equal(t, "audio/wav", b.audioType)
	assert.Equal(t, task.UserID("bob"), b.commands[0].User)
}

func TestProcessVoiceRawBody(t *testing.T) {
	b := newBackend()
	srv, _ := newServer(t, b)

	resp := post(t, srv, "/api/v1/process-voice", "tok-alice", "audio/ogg", []byte("OggS"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, "audio/ogg", b.audioType)
}

func TestProcessVoiceTranscriptionFailure(t *testing.T) {
	b := newBackend()
	b.voiceErr = fmt.Errorf("%w: whisper down", orchestrator.ErrTranscription)
	srv, _ := newServer(t, b)

	resp := post(t, srv, "/api/v1/process-voice", "tok-alice", "audio/wav", []byte("RIFF"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Failed to transcribe audio", decode[message.ErrorResponse](t, resp).Detail)

	b.voiceErr = errors.New("disk full")
	resp = post(t, srv, "/api/v1/process-voice", "tok-alice", "audio/wav", []byte("RIFF"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestShortcuts(t *testing.T) {
	b := newBackend()
	srv, _ := newServer(t, b)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/shortcuts",
		strings.NewReader(`{"phrase":"movie time","expansion":"turn off the light"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok-alice")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	b.mu.Lock()
	assert.Equal(t, "turn off the light", b.shortcuts["alice/movie time"])
	b.mu.Unlock()

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/shortcuts/movie%20time", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok-alice")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	b.mu.Lock()
	assert.Empty(t, b.shortcuts)
	b.mu.Unlock()
}

func dial(t *testing.T, srv *httptest.Server, user, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + user + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestSessionCommand(t *testing.T) {
	srv, _ := newServer(t, newBackend())
	conn := dial(t, srv, "alice", "tok-alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"hello"}`)))
	env := readFrame(t, conn)
	assert.Equal(t, "success", env["status"])
	assert.Equal(t, "general", env["task_type"])
	assert.Equal(t, "echo: hello", env["result"].(map[string]any)["message"])
}

func TestSessionMalformedFrameKeepsConnectionOpen(t *testing.T) {
	b := newBackend()
	srv, _ := newServer(t, b)
	conn := dial(t, srv, "alice", "tok-alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	got := readFrame(t, conn)
	assert.Equal(t, map[string]any{"type": "error", "message": "Invalid JSON format"}, got)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"still here"}`)))
	env := readFrame(t, conn)
	assert.Equal(t, "success", env["status"], "the next frame is the command result, not a second error")

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Len(t, b.commands, 1)
}

func TestSessionIdentityMismatch(t *testing.T) {
	srv, sessions := newServer(t, newBackend())
	conn := dial(t, srv, "alice", "tok-bob")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, session.CloseIdentityMismatch, ce.Code)
	assert.Zero(t, sessions.Connections("alice"))
}

func TestSessionBroadcastToAllConnections(t *testing.T) {
	srv, sessions := newServer(t, newBackend())
	first := dial(t, srv, "alice", "tok-alice")
	second := dial(t, srv, "alice", "tok-alice")
	require.Eventually(t, func() bool { return sessions.Connections("alice") == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, first.WriteMessage(websocket.TextMessage, []byte(`{"text":"lights"}`)))
	for _, c := range []*websocket.Conn{first, second} {
		env := readFrame(t, c)
		assert.Equal(t, "echo: lights", env["result"].(map[string]any)["message"])
	}

	require.NoError(t, second.Close())
	require.Eventually(t, func() bool { return sessions.Connections("alice") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, first.WriteMessage(websocket.TextMessage, []byte(`{"text":"again"}`)))
	env := readFrame(t, first)
	assert.Equal(t, "echo: again", env["result"].(map[string]any)["message"])
}

func TestWSConnSendRefusesWhenFull(t *testing.T) {
	c := &wsConn{id: "x", send: make(chan []byte, 1), done: make(chan struct{})}
	require.NoError(t, c.Send([]byte("a")))
	assert.ErrorIs(t, c.Send([]byte("b")), errSendBufferFull)

	c.Close(session.CloseInternalError, "bye")
	c.Close(websocket.CloseNormalClosure, "ignored")
	assert.ErrorIs(t, c.Send([]byte("c")), errConnClosed)
	assert.Equal(t, session.CloseInternalError, c.code)
}

func TestSwaggerDoc(t *testing.T) {
	srv, _ := newServer(t, newBackend())

	resp, err := srv.Client().Get(srv.URL + "/swagger/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Info  map[string]any `json:"info"`
		Paths map[string]any `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "qia API", doc.Info["title"])
	for _, path := range []string{"/api/v1/command", "/api/v1/process-voice", "/api/v1/shortcuts", "/ws/{user_id}"} {
		assert.Contains(t, doc.Paths, path)
	}
}
