// Package http implements the HTTP/WebSocket transport for qia.
//
// This transport exposes a REST API for one-shot voice and text commands and
// a WebSocket endpoint for persistent per-user sessions. It is best suited
// for web clients, phones and anything else that speaks HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/qia/internal/auth"
	"github.com/nadzzz/qia/internal/message"
	"github.com/nadzzz/qia/internal/orchestrator"
	"github.com/nadzzz/qia/internal/session"
	"github.com/nadzzz/qia/internal/task"
	"github.com/nadzzz/qia/internal/transport"
)

const (
	defaultMaxUpload  = 25 << 20
	defaultSendBuffer = 16
)

// Options configures the transport.
type Options struct {
	Port int
	// MaxUploadBytes caps one-shot audio uploads.
	MaxUploadBytes int64
	// SendBuffer is the per-connection outbound frame queue length.
	SendBuffer int
	Auth       auth.Authenticator
	Sessions   *session.Manager
}

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	opts   Options
	server *http.Server
}

// New creates a new HTTP transport. Sessions must run commands on the same
// backend later passed to Listen.
func New(opts Options) *Transport {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.Auth == nil {
		opts.Auth = auth.Open{}
	}
	return &Transport{opts: opts}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Routes builds the request router for backend.
func (t *Transport) Routes(backend transport.Backend) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/process-voice", func(w http.ResponseWriter, r *http.Request) {
		t.handleProcessVoice(w, r, backend)
	})
	mux.HandleFunc("POST /api/v1/command", func(w http.ResponseWriter, r *http.Request) {
		t.handleCommand(w, r, backend)
	})
	mux.HandleFunc("PUT /api/v1/shortcuts", func(w http.ResponseWriter, r *http.Request) {
		t.handlePutShortcut(w, r, backend)
	})
	mux.HandleFunc("DELETE /api/v1/shortcuts/{phrase}", func(w http.ResponseWriter, r *http.Request) {
		t.handleDeleteShortcut(w, r, backend)
	})

	if t.opts.Sessions != nil {
		mux.HandleFunc("GET /ws/{user_id}", t.handleSession)
	}

	// Swagger UI for the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	return mux
}

// Listen starts the HTTP server and routes incoming requests to backend.
func (t *Transport) Listen(ctx context.Context, backend transport.Backend) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.opts.Port),
		Handler:           t.Routes(backend),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.opts.Port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		_ = t.Close()
	}()

	if err := t.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server. Hijacked session connections
// are not tracked by the server, so they are closed explicitly.
func (t *Transport) Close() error {
	if t.opts.Sessions != nil {
		t.opts.Sessions.CloseAll(closeGoingAway, "server shutting down")
	}
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

// authenticate resolves the bearer token of r. It writes a 401 and returns
// false on failure.
func (t *Transport) authenticate(w http.ResponseWriter, r *http.Request) (context.Context, bool) {
	user, err := t.opts.Auth.Authenticate(r.Context(), auth.BearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid authentication credentials")
		return nil, false
	}
	return auth.WithUser(r.Context(), user), true
}

// handleProcessVoice processes a POST /api/v1/process-voice request.
//
// @Summary     Process a voice command
// @Description Accepts an audio upload, either as the multipart field "audio_file" or as the raw request body.
// @Description The audio is transcribed, run as a command for the authenticated user, and the result
// @Description message is synthesized back to speech when TTS is enabled.
// @Tags        commands
// @Accept      multipart/form-data
// @Accept      audio/wav
// @Accept      audio/ogg
// @Produce     json
// @Security    BearerAuth
// @Param       audio_file  formData  file  false  "Recorded audio"
// @Success     200  {object}  message.VoiceResponse  "Transcription, command envelope and optional audio"
// @Failure     400  {object}  message.ErrorResponse  "Failed to transcribe audio"
// @Failure     401  {object}  message.ErrorResponse  "Invalid authentication credentials"
// @Failure     500  {object}  message.ErrorResponse  "Internal processing error"
// @Router      /api/v1/process-voice [post]
func (t *Transport) handleProcessVoice(w http.ResponseWriter, r *http.Request, backend transport.Backend) {
	ctx, ok := t.authenticate(w, r)
	if !ok {
		return
	}
	user, _ := auth.UserFrom(ctx)

	audio, contentType, err := t.readAudio(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := backend.ProcessVoice(ctx, user, audio, contentType)
	switch {
	case errors.Is(err, orchestrator.ErrTranscription):
		slog.Warn("voice request rejected", "user", user, "error", err)
		writeError(w, http.StatusBadRequest, orchestrator.TranscriptionFailedMessage)
		return
	case err != nil:
		slog.Error("voice request failed", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal processing error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// readAudio returns the uploaded audio and its MIME type.
func (t *Transport) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, t.opts.MaxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(t.opts.MaxUploadBytes); err != nil {
			return nil, "", fmt.Errorf("invalid multipart body: %w", err)
		}
		f, hdr, err := r.FormFile("audio_file")
		if err != nil {
			return nil, "", errors.New("missing audio_file field")
		}
		defer f.Close()
		audio, err := io.ReadAll(f)
		if err != nil {
			return nil, "", fmt.Errorf("reading audio: %w", err)
		}
		ct := hdr.Header.Get("Content-Type")
		if ct == "" || ct == "application/octet-stream" {
			ct = "audio/wav"
		}
		return audio, ct, nil
	}

	audio, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, "", errors.New("empty audio body")
	}
	if mediaType == "" {
		mediaType = "audio/wav"
	}
	return audio, mediaType, nil
}

// handleCommand processes a POST /api/v1/command request.
//
// @Summary     Run a typed command
// @Description Runs the text as a command for the authenticated user and returns the result envelope.
// @Tags        commands
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       command  body      message.CommandRequest  true  "Command text"
// @Success     200  {object}  message.Envelope       "Result envelope (status may be error)"
// @Failure     400  {object}  message.ErrorResponse  "Invalid request body"
// @Failure     401  {object}  message.ErrorResponse  "Invalid authentication credentials"
// @Router      /api/v1/command [post]
func (t *Transport) handleCommand(w http.ResponseWriter, r *http.Request, backend transport.Backend) {
	ctx, ok := t.authenticate(w, r)
	if !ok {
		return
	}
	user, _ := auth.UserFrom(ctx)

	var req message.CommandRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, message.InvalidJSONMessage)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, message.MissingTextMessage)
		return
	}

	res := backend.Handle(ctx, toCommand(user, req))
	writeJSON(w, http.StatusOK, message.NewEnvelope(res))
}

// ShortcutRequest is the body of PUT /api/v1/shortcuts.
type ShortcutRequest struct {
	Phrase    string `json:"phrase"`
	Expansion string `json:"expansion"`
}

// handlePutShortcut processes a PUT /api/v1/shortcuts request.
//
// @Summary     Set a custom shortcut
// @Description A command that exactly matches the phrase runs as the expansion instead.
// @Tags        shortcuts
// @Accept      json
// @Security    BearerAuth
// @Param       shortcut  body  ShortcutRequest  true  "Shortcut"
// @Success     204
// @Failure     400  {object}  message.ErrorResponse  "Invalid request body"
// @Failure     401  {object}  message.ErrorResponse  "Invalid authentication credentials"
// @Router      /api/v1/shortcuts [put]
func (t *Transport) handlePutShortcut(w http.ResponseWriter, r *http.Request, backend transport.Backend) {
	ctx, ok := t.authenticate(w, r)
	if !ok {
		return
	}
	user, _ := auth.UserFrom(ctx)

	var req ShortcutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, message.InvalidJSONMessage)
		return
	}
	if strings.TrimSpace(req.Phrase) == "" || strings.TrimSpace(req.Expansion) == "" {
		writeError(w, http.StatusBadRequest, "phrase and expansion are required")
		return
	}
	if err := backend.SetShortcut(ctx, user, req.Phrase, req.Expansion); err != nil {
		slog.Error("storing shortcut failed", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal processing error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteShortcut processes a DELETE /api/v1/shortcuts/{phrase} request.
//
// @Summary     Remove a custom shortcut
// @Tags        shortcuts
// @Security    BearerAuth
// @Param       phrase  path  string  true  "Shortcut phrase"
// @Success     204
// @Failure     401  {object}  message.ErrorResponse  "Invalid authentication credentials"
// @Router      /api/v1/shortcuts/{phrase} [delete]
func (t *Transport) handleDeleteShortcut(w http.ResponseWriter, r *http.Request, backend transport.Backend) {
	ctx, ok := t.authenticate(w, r)
	if !ok {
		return
	}
	user, _ := auth.UserFrom(ctx)
	if err := backend.SetShortcut(ctx, user, r.PathValue("phrase"), ""); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toCommand(user task.UserID, req message.CommandRequest) task.Command {
	return task.Command{User: user, Text: req.Text, Aux: req.Aux}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, message.ErrorResponse{Detail: detail})
}
