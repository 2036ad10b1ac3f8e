// Package orchestrator implements the command pipeline.
//
// Every command goes through the same steps: load the user's context,
// expand shortcuts, classify the text into an intent, run the intent's
// handler and record the outcome back into the context. Each step is bounded
// by a deadline and every failure ends in an error result; nothing a
// collaborator does can make Handle hang or panic.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/qia/internal/interpreter"
	"github.com/nadzzz/qia/internal/message"
	"github.com/nadzzz/qia/internal/task"
	"github.com/nadzzz/qia/internal/tts"
)

// ErrTranscription is returned by ProcessVoice when the audio could not be
// turned into text.
var ErrTranscription = errors.New("failed to transcribe audio")

// TranscriptionFailedMessage is the client-facing text for ErrTranscription.
const TranscriptionFailedMessage = "Failed to transcribe audio"

// Classifier maps command text to a raw task label.
type Classifier interface {
	Classify(ctx context.Context, text string, uc task.UserContext) (string, error)
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string, opts interpreter.TranscribeOpts) (*interpreter.TranscribeResult, error)
}

// ContextStore reads and updates per-user context.
type ContextStore interface {
	Get(ctx context.Context, user task.UserID) (task.UserContext, error)
	Update(ctx context.Context, user task.UserID, command string, r task.Result) error
	SetShortcut(ctx context.Context, user task.UserID, phrase, expansion string) error
}

// Config bounds the pipeline steps that do not belong to a handler.
type Config struct {
	ContextTimeout  time.Duration
	ClassifyTimeout time.Duration
	// UpdateTimeout bounds the context write after the handler returned.
	UpdateTimeout time.Duration
}

// DefaultConfig returns the standard deadlines.
func DefaultConfig() Config {
	return Config{
		ContextTimeout:  time.Second,
		ClassifyTimeout: 5 * time.Second,
		UpdateTimeout:   2 * time.Second,
	}
}

// Deps are the collaborators of the orchestrator. Transcriber and
// Synthesizer are optional.
type Deps struct {
	Classifier  Classifier
	Table       *task.Table
	Contexts    ContextStore
	Transcriber Transcriber
	Synthesizer tts.Synthesizer
}

// Orchestrator runs commands. It is safe for concurrent use and holds no
// per-user state of its own.
type Orchestrator struct {
	classifier  Classifier
	table       *task.Table
	contexts    ContextStore
	transcriber Transcriber
	synthesizer tts.Synthesizer
	cfg         Config
	now         func() time.Time
}

// New creates an orchestrator. Zero deadlines in cfg take their defaults.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Classifier == nil {
		return nil, fmt.Errorf("orchestrator: classifier is required")
	}
	if deps.Table == nil {
		return nil, fmt.Errorf("orchestrator: dispatch table is required")
	}
	if deps.Contexts == nil {
		return nil, fmt.Errorf("orchestrator: context store is required")
	}
	def := DefaultConfig()
	if cfg.ContextTimeout <= 0 {
		cfg.ContextTimeout = def.ContextTimeout
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = def.ClassifyTimeout
	}
	if cfg.UpdateTimeout <= 0 {
		cfg.UpdateTimeout = def.UpdateTimeout
	}
	return &Orchestrator{
		classifier:  deps.Classifier,
		table:       deps.Table,
		contexts:    deps.Contexts,
		transcriber: deps.Transcriber,
		synthesizer: deps.Synthesizer,
		cfg:         cfg,
		now:         time.Now,
	}, nil
}

// Handle runs one command and returns its result. It always returns a
// populated result: failures are reported through Status, never as a panic.
func (o *Orchestrator) Handle(ctx context.Context, cmd task.Command) task.Result {
	start := time.Now()
	id := uuid.NewString()
	logger := slog.With("command_id", id, "user", cmd.User)

	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return task.Failed("", fmt.Errorf("%w: empty command", task.ErrClassification), task.ErrClassification.Error(), o.now())
	}
	logger.Info("command received", "text_length", len(text))

	// Step 1: Load context, degrading to an empty one.
	uc := o.loadContext(ctx, cmd.User, logger)

	// Step 2: Expand a custom shortcut.
	if exp, ok := uc.Expand(text); ok {
		logger.Debug("shortcut expanded", "shortcut", text)
		text = exp
	}

	r := o.run(ctx, id, cmd, text, uc, logger)

	// Step 5: Record the outcome, even when the caller has gone away.
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.UpdateTimeout)
	defer cancel()
	if err := o.contexts.Update(uctx, cmd.User, text, r); err != nil {
		logger.Warn("context update failed", "error", err)
	}

	logger.Info("command complete",
		"intent", r.Intent,
		"status", r.Status,
		"duration", time.Since(start),
	)
	return r
}

// run covers classification, lookup and execution.
func (o *Orchestrator) run(ctx context.Context, id string, cmd task.Command, text string, uc task.UserContext, logger *slog.Logger) task.Result {
	// Step 3: Classify.
	label, err := bounded(ctx, o.cfg.ClassifyTimeout, func(ctx context.Context) (string, error) {
		return o.classifier.Classify(ctx, text, uc)
	})
	if err != nil {
		logger.Warn("classification failed", "error", err)
		return task.Failed("", fmt.Errorf("%w: %v", task.ErrClassification, err), task.ErrClassification.Error(), o.now())
	}
	intent, err := task.ParseIntent(label)
	if err != nil {
		logger.Warn("classifier returned unknown label", "label", label)
		return task.Failed("", err, task.ErrClassification.Error(), o.now())
	}
	logger = logger.With("intent", intent)

	// Step 4: Dispatch.
	entry, err := o.table.Lookup(intent)
	if err != nil {
		logger.Error("no handler registered for intent", "error", err, "defect", true)
		return task.Failed(intent, err, err.Error(), o.now())
	}

	req := task.Request{
		CommandID: id,
		User:      cmd.User,
		Text:      text,
		Aux:       cmd.Aux,
		Context:   uc,
	}
	payload, err := bounded(ctx, entry.Timeout, func(ctx context.Context) (task.Payload, error) {
		return entry.Handler.Execute(ctx, req)
	})
	if err == nil && payload == nil {
		err = errors.New("handler returned no payload")
	}
	if err != nil {
		if !errors.Is(err, task.ErrTransport) {
			err = &task.HandlerError{Intent: intent, Err: err}
		}
		logger.Warn("handler failed", "error", err)
		return task.Failed(intent, err, err.Error(), o.now())
	}
	return task.Succeeded(intent, payload, o.now())
}

// loadContext returns the user's context, or whatever part of it could be
// read before the deadline.
func (o *Orchestrator) loadContext(ctx context.Context, user task.UserID, logger *slog.Logger) task.UserContext {
	uc, err := bounded(ctx, o.cfg.ContextTimeout, func(ctx context.Context) (task.UserContext, error) {
		return o.contexts.Get(ctx, user)
	})
	if err != nil {
		logger.Warn("context load degraded", "error", err)
	}
	if uc.User == "" {
		return task.EmptyContext(user)
	}
	return uc
}

// SetShortcut stores or, with an empty expansion, removes a user shortcut.
func (o *Orchestrator) SetShortcut(ctx context.Context, user task.UserID, phrase, expansion string) error {
	return o.contexts.SetShortcut(ctx, user, phrase, expansion)
}

// ProcessVoice transcribes audio, runs the transcript as a command and
// synthesizes the result message. A failed synthesis only drops the audio.
func (o *Orchestrator) ProcessVoice(ctx context.Context, user task.UserID, audio []byte, contentType string) (*message.VoiceResponse, error) {
	logger := slog.With("user", user)
	if o.transcriber == nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscription, interpreter.ErrTranscriptionUnsupported)
	}
	logger.Debug("transcribing audio", "content_type", contentType, "bytes", len(audio))
	tr, err := o.transcriber.Transcribe(ctx, audio, contentType, interpreter.TranscribeOpts{})
	if err != nil {
		logger.Error("transcription failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	if strings.TrimSpace(tr.Text) == "" {
		return nil, fmt.Errorf("%w: empty transcript", ErrTranscription)
	}
	logger.Info("transcription complete", "text_length", len(tr.Text), "language", tr.Language)

	r := o.Handle(ctx, task.Command{User: user, Text: tr.Text})
	resp := &message.VoiceResponse{
		Status:        "success",
		Transcription: tr.Text,
		Language:      tr.Language,
		Response:      message.NewEnvelope(r),
	}

	if o.synthesizer != nil && r.Message != "" {
		lang := tr.Language
		if lang == "" {
			lang = "en"
		}
		sr, err := o.synthesizer.Synthesize(ctx, r.Message, tts.SynthesizeOpts{Language: lang})
		if err != nil {
			logger.Warn("TTS synthesis failed, continuing without audio", "error", err)
		} else {
			resp.SetAudio(sr.Audio, sr.ContentType)
		}
	}
	return resp, nil
}

// bounded runs fn under a deadline of d. fn keeps running in the background
// after a timeout; its result is then discarded. A panic in fn is returned
// as an error.
func bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{v: v, err: err}
	}()

	select {
	case out := <-done:
		return out.v, out.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", task.ErrTimeout, d)
		}
		return zero, ctx.Err()
	}
}
