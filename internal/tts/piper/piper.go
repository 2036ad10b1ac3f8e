// Package piper implements the TTS Synthesizer using a Piper Wyoming protocol server.
//
// Piper is a fast, local neural text-to-speech system. The linuxserver/piper
// container exposes the Wyoming protocol on TCP port 10200.
package piper

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"strings"
	"time"

	"github.com/nadzzz/qia/internal/config"
	"github.com/nadzzz/qia/internal/tts"
)

// defaultVoices maps ISO-639-1 language codes to Piper voice model names.
var defaultVoices = map[string]string{
	"en": "en_US-lessac-medium",
	"fr": "fr_FR-siwis-medium",
	"es": "es_ES-mls_10246-low",
	"de": "de_DE-thorsten-medium",
	"it": "it_IT-riccardo-x_low",
	"pt": "pt_BR-faber-medium",
	"nl": "nl_NL-mls-medium",
	"pl": "pl_PL-darkman-medium",
	"ru": "ru_RU-ruslan-medium",
	"ja": "ja_JP-amitaro-medium",
	"ko": "ko_KR-kss-x_low",
	"zh": "zh_CN-huayan-medium",
}

const defaultIOTimeout = 30 * time.Second

// Synthesizer implements tts.Synthesizer using the Wyoming protocol.
type Synthesizer struct {
	endpoint  string            // default host:port
	endpoints map[string]string // language -> host:port
	voices    map[string]string // language -> voice name
	dialer    net.Dialer
}

// New creates a new Piper synthesizer from config.
func New(cfg config.PiperConfig) *Synthesizer {
	voices := maps.Clone(defaultVoices)
	maps.Copy(voices, cfg.Voices)

	endpoints := make(map[string]string, len(cfg.Endpoints))
	for lang, ep := range cfg.Endpoints {
		endpoints[lang] = hostPort(ep)
	}
	return &Synthesizer{
		endpoint:  hostPort(cfg.Endpoint),
		endpoints: endpoints,
		voices:    voices,
		dialer:    net.Dialer{Timeout: 10 * time.Second},
	}
}

func hostPort(ep string) string {
	ep = strings.TrimPrefix(ep, "tcp://")
	return strings.TrimPrefix(ep, "http://")
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "piper" }

func (s *Synthesizer) route(opts tts.SynthesizeOpts) (endpoint, voice string) {
	voice = opts.Voice
	if voice == "" {
		voice = s.voices[opts.Language]
	}
	if voice == "" {
		voice = s.voices["en"]
	}
	endpoint = s.endpoints[opts.Language]
	if endpoint == "" {
		endpoint = s.endpoint
	}
	return endpoint, voice
}

// Synthesize sends text to the Piper server and returns the speech as WAV.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	endpoint, voice := s.route(opts)
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured for language %q", opts.Language)
	}
	log := slog.With("endpoint", endpoint, "voice", voice)
	log.Debug("piper synthesize", "text_length", len(text), "language", opts.Language)

	conn, err := s.dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultIOTimeout)
	}
	_ = conn.SetDeadline(deadline)

	// Unblock reads if ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	req := event{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": map[string]any{"name": voice},
		},
	}
	if err := writeEvent(conn, req, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	// audio-start, audio-chunk*, audio-stop
	r := bufio.NewReader(conn)
	format := pcmFormat{Rate: 22050, Channels: 1, Width: 2}
	var pcm bytes.Buffer
	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("reading piper event: %w", ctx.Err())
			}
			return nil, fmt.Errorf("reading piper event: %w", err)
		}
		switch evt.Type {
		case "audio-start":
			format = pcmFormat{
				Rate:     intField(evt.Data, "rate", format.Rate),
				Channels: intField(evt.Data, "channels", format.Channels),
				Width:    intField(evt.Data, "width", format.Width),
			}
		case "audio-chunk":
			pcm.Write(payload)
		case "audio-stop":
			log.Debug("piper audio-stop", "pcm_bytes", pcm.Len(), "rate", format.Rate)
			return &tts.SynthesizeResult{
				Audio:       encodeWAV(pcm.Bytes(), format),
				ContentType: "audio/wav",
				SampleRate:  format.Rate,
				Channels:    format.Channels,
			}, nil
		case "error":
			msg, _ := evt.Data["text"].(string)
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("piper error: %s", msg)
		default:
			log.Debug("piper unknown event", "type", evt.Type)
		}
	}
}

// Close is a no-op; connections are per-request.
func (s *Synthesizer) Close() error { return nil }
