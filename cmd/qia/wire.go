package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nadzzz/qia/internal/config"
	"github.com/nadzzz/qia/internal/device"
	"github.com/nadzzz/qia/internal/handler"
	"github.com/nadzzz/qia/internal/interpreter"
	"github.com/nadzzz/qia/internal/interpreter/keyword"
	localinterp "github.com/nadzzz/qia/internal/interpreter/local"
	openaiinterp "github.com/nadzzz/qia/internal/interpreter/openai"
	"github.com/nadzzz/qia/internal/orchestrator"
	"github.com/nadzzz/qia/internal/search"
	"github.com/nadzzz/qia/internal/store"
	"github.com/nadzzz/qia/internal/task"
	"github.com/nadzzz/qia/internal/tts"
	openaitts "github.com/nadzzz/qia/internal/tts/openai"
	"github.com/nadzzz/qia/internal/tts/piper"
	"github.com/nadzzz/qia/internal/usercontext"
)

// app holds the transport-independent core of the daemon.
type app struct {
	orch     *orchestrator.Orchestrator
	contexts *usercontext.Store

	closers []func() error
}

// build wires the core collaborators from cfg. On error everything already
// opened is closed again.
func build(cfg *config.Config) (*app, error) {
	a := &app{}
	built := false
	defer func() {
		if !built {
			_ = a.Close()
		}
	}()

	records, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, records.Close)

	bus, err := openBus(cfg.Devices)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, bus.Close)

	tables := handler.DefaultTables()
	if cfg.Devices.TablesFile != "" {
		if tables, err = handler.LoadTables(cfg.Devices.TablesFile); err != nil {
			return nil, err
		}
		slog.Info("loaded keyword tables", "path", cfg.Devices.TablesFile)
	}

	timeouts := make(map[task.Intent]time.Duration, len(cfg.Orchestrator.HandlerTimeouts))
	for label, d := range cfg.Orchestrator.HandlerTimeouts {
		intent, err := task.ParseIntent(label)
		if err != nil {
			return nil, fmt.Errorf("config: orchestrator.handler_timeouts: %w", err)
		}
		timeouts[intent] = d
	}

	table, err := handler.NewTable(handler.Deps{
		Searcher: search.New(cfg.Search.Endpoint, cfg.Search.Timeout),
		Devices: device.NewController(bus, device.ControllerConfig{
			TopicPrefix:    cfg.Devices.TopicPrefix,
			PollInterval:   cfg.Devices.PollInterval,
			ConfirmTimeout: cfg.Devices.ConfirmTimeout,
		}),
		Tables: tables,
	}, cfg.Orchestrator.HandlerTimeout, timeouts)
	if err != nil {
		return nil, fmt.Errorf("building handler table: %w", err)
	}

	a.contexts = usercontext.New(records, table.Learners(), usercontext.Config{
		Capacity:      cfg.Context.Capacity,
		TTL:           cfg.Context.TTL,
		PruneInterval: cfg.Context.PruneInterval,
	})

	interp, err := newInterpreter(cfg.Interpreter)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, interp.Close)

	var synth tts.Synthesizer
	if cfg.TTS.Enabled {
		synth = newSynthesizer(cfg)
		a.closers = append(a.closers, synth.Close)
		slog.Info("text-to-speech enabled", "backend", synth.Name())
	}

	a.orch, err = orchestrator.New(orchestrator.Deps{
		Classifier:  interp,
		Table:       table,
		Contexts:    a.contexts,
		Transcriber: interp,
		Synthesizer: synth,
	}, orchestrator.Config{
		ContextTimeout:  cfg.Orchestrator.ContextTimeout,
		ClassifyTimeout: cfg.Orchestrator.ClassifyTimeout,
	})
	if err != nil {
		return nil, err
	}
	built = true
	return a, nil
}

// Close releases the collaborators in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openStore(cfg config.StoreConfig) (store.RecordStore, error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		slog.Info("using sqlite store", "path", cfg.Path)
		return s, nil
	case "memory":
		slog.Warn("using in-memory store, preferences are lost on restart")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func openBus(cfg config.DevicesConfig) (device.Bus, error) {
	switch cfg.Backend {
	case "mqtt":
		return device.NewMQTTBus(device.MQTTConfig{
			Broker:      cfg.Broker,
			ClientID:    cfg.ClientID,
			Username:    cfg.Username,
			Password:    cfg.Password,
			TopicPrefix: cfg.TopicPrefix,
		})
	case "memory":
		// Devices echo every command back as their new state.
		slog.Info("using in-memory device bus")
		return device.NewMemoryBus(true, 0), nil
	default:
		return nil, fmt.Errorf("unknown devices backend %q", cfg.Backend)
	}
}

func newInterpreter(cfg config.InterpreterConfig) (interpreter.Interpreter, error) {
	switch cfg.Backend {
	case "openai":
		slog.Info("using OpenAI interpreter",
			"transcription_model", cfg.OpenAI.TranscriptionModel,
			"completion_model", cfg.OpenAI.CompletionModel)
		return openaiinterp.New(cfg.OpenAI), nil
	case "local":
		slog.Info("using local interpreter",
			"whisper", cfg.Local.WhisperEndpoint,
			"llm", cfg.Local.LLMEndpoint)
		return localinterp.New(cfg.Local), nil
	case "keyword":
		slog.Info("using keyword interpreter, voice input is disabled")
		return keyword.New(keyword.DefaultRules), nil
	default:
		return nil, fmt.Errorf("unknown interpreter backend %q", cfg.Backend)
	}
}

func newSynthesizer(cfg *config.Config) tts.Synthesizer {
	if cfg.TTS.Backend == "openai" {
		return openaitts.New(cfg.Interpreter.OpenAI, cfg.TTS.OpenAI)
	}
	return piper.New(cfg.TTS.Piper)
}
