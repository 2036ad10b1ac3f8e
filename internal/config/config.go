// Package config handles loading and validating the qia configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// defaultSmartHomeTimeout matches the handler package default used when
// handler_timeouts has no smart_home entry.
const defaultSmartHomeTimeout = 10 * time.Second

// Config is the root configuration for the qia daemon.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Transports   TransportsConfig   `mapstructure:"transports"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Interpreter  InterpreterConfig  `mapstructure:"interpreter"`
	TTS          TTSConfig          `mapstructure:"tts"`
	Store        StoreConfig        `mapstructure:"store"`
	Context      ContextConfig      `mapstructure:"context"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Search       SearchConfig       `mapstructure:"search"`
	Devices      DevicesConfig      `mapstructure:"devices"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
	MQTT MQTTConfig `mapstructure:"mqtt"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
	// MaxUploadBytes caps one-shot audio uploads.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	// SendBuffer is the per-connection outbound frame queue length.
	SendBuffer int `mapstructure:"send_buffer"`
}

// MQTTConfig configures the MQTT command ingress transport.
type MQTTConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Broker        string `mapstructure:"broker"`
	ClientID      string `mapstructure:"client_id"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	CommandTopic  string `mapstructure:"command_topic"`  // prefix; user id is the last segment
	ResponseTopic string `mapstructure:"response_topic"` // prefix; user id is appended
}

// AuthConfig lists the accepted bearer tokens. When empty the daemon runs
// in open mode and the token is taken as the user id.
type AuthConfig struct {
	Tokens []TokenConfig `mapstructure:"tokens"`
}

// TokenConfig binds one bearer token to a user identity. It is a list entry
// rather than a map key because viper lowercases map keys.
type TokenConfig struct {
	Token string `mapstructure:"token"`
	User  string `mapstructure:"user"`
}

// TokenMap returns the tokens keyed by token.
func (c AuthConfig) TokenMap() map[string]string {
	m := make(map[string]string, len(c.Tokens))
	for _, t := range c.Tokens {
		m[t.Token] = t.User
	}
	return m
}

// InterpreterConfig selects and configures the transcription/classification backend.
type InterpreterConfig struct {
	Backend string       `mapstructure:"backend"` // "openai", "local" or "keyword"
	OpenAI  OpenAIConfig `mapstructure:"openai"`
	Local   LocalConfig  `mapstructure:"local"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey             string `mapstructure:"api_key"`
	BaseURL            string `mapstructure:"base_url"`
	TranscriptionModel string `mapstructure:"transcription_model"`
	CompletionModel    string `mapstructure:"completion_model"`
	Language           string `mapstructure:"language"`
}

// LocalConfig holds self-hosted model settings.
type LocalConfig struct {
	WhisperEndpoint string `mapstructure:"whisper_endpoint"`
	WhisperType     string `mapstructure:"whisper_type"` // "openai" (default) or "asr"
	VADFilter       bool   `mapstructure:"vad_filter"`
	LLMEndpoint     string `mapstructure:"llm_endpoint"`
	LLMModel        string `mapstructure:"llm_model"`
	Language        string `mapstructure:"language"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Enabled bool            `mapstructure:"enabled"`
	Backend string          `mapstructure:"backend"` // "piper" or "openai"
	Piper   PiperConfig     `mapstructure:"piper"`
	OpenAI  OpenAITTSConfig `mapstructure:"openai"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`  // host:port
	Endpoints map[string]string `mapstructure:"endpoints"` // ISO-639-1 code -> host:port
	Voices    map[string]string `mapstructure:"voices"`    // ISO-639-1 code -> voice model
}

// OpenAITTSConfig holds OpenAI speech settings. The API key is shared with
// the interpreter.
type OpenAITTSConfig struct {
	Model string `mapstructure:"model"`
	Voice string `mapstructure:"voice"`
}

// StoreConfig selects the persisted user-record store.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // "sqlite" or "memory"
	Path    string `mapstructure:"path"`
}

// ContextConfig bounds the session-scoped interaction history.
type ContextConfig struct {
	Capacity      int           `mapstructure:"capacity"`
	TTL           time.Duration `mapstructure:"ttl"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// OrchestratorConfig holds the pipeline deadlines.
type OrchestratorConfig struct {
	ContextTimeout  time.Duration            `mapstructure:"context_timeout"`
	ClassifyTimeout time.Duration            `mapstructure:"classify_timeout"`
	HandlerTimeout  time.Duration            `mapstructure:"handler_timeout"`
	HandlerTimeouts map[string]time.Duration `mapstructure:"handler_timeouts"` // intent -> timeout
}

// SearchConfig configures the web search collaborator.
type SearchConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DevicesConfig configures the smart-home device transport.
type DevicesConfig struct {
	Backend        string        `mapstructure:"backend"` // "mqtt" or "memory"
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	// TablesFile optionally overrides the device/action/brightness keyword tables.
	TablesFile string `mapstructure:"tables_file"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./qia.yaml, ./configs/qia.yaml, /etc/qia/qia.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("qia")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/qia")
	}

	// Environment variables: QIA_SERVER_HEALTH_PORT, QIA_INTERPRETER_BACKEND, etc.
	v.SetEnvPrefix("QIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${OPENAI_API_KEY}").
	cfg.Interpreter.OpenAI.APIKey = resolveEnvRef(cfg.Interpreter.OpenAI.APIKey)
	cfg.Devices.Password = resolveEnvRef(cfg.Devices.Password)
	cfg.Transports.MQTT.Password = resolveEnvRef(cfg.Transports.MQTT.Password)
	for i := range cfg.Auth.Tokens {
		cfg.Auth.Tokens[i].Token = resolveEnvRef(cfg.Auth.Tokens[i].Token)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", false)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("transports.http.max_upload_bytes", 25<<20)
	v.SetDefault("transports.http.send_buffer", 64)
	v.SetDefault("transports.mqtt.enabled", false)
	v.SetDefault("transports.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("transports.mqtt.client_id", "qia-commands")
	v.SetDefault("transports.mqtt.command_topic", "qia/commands")
	v.SetDefault("transports.mqtt.response_topic", "qia/responses")
	v.SetDefault("interpreter.backend", "keyword")
	v.SetDefault("interpreter.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("interpreter.openai.transcription_model", "whisper-1")
	v.SetDefault("interpreter.openai.completion_model", "gpt-4")
	v.SetDefault("interpreter.openai.language", "en")
	v.SetDefault("interpreter.local.whisper_endpoint", "http://localhost:8000/v1/audio/transcriptions")
	v.SetDefault("interpreter.local.whisper_type", "openai")
	v.SetDefault("interpreter.local.llm_endpoint", "http://localhost:11434/api/generate")
	v.SetDefault("interpreter.local.llm_model", "llama3")
	v.SetDefault("tts.enabled", false)
	v.SetDefault("tts.backend", "piper")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("tts.openai.model", "tts-1")
	v.SetDefault("tts.openai.voice", "alloy")
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", "qia.db")
	v.SetDefault("context.capacity", 50)
	v.SetDefault("context.ttl", time.Hour)
	v.SetDefault("context.prune_interval", 5*time.Minute)
	v.SetDefault("orchestrator.context_timeout", 2*time.Second)
	v.SetDefault("orchestrator.classify_timeout", 10*time.Second)
	v.SetDefault("orchestrator.handler_timeout", 5*time.Second)
	v.SetDefault("orchestrator.handler_timeouts", map[string]time.Duration{"smart_home": defaultSmartHomeTimeout})
	v.SetDefault("search.endpoint", "https://api.duckduckgo.com/")
	v.SetDefault("search.timeout", 4*time.Second)
	v.SetDefault("devices.backend", "memory")
	v.SetDefault("devices.broker", "tcp://localhost:1883")
	v.SetDefault("devices.client_id", "qia-devices")
	v.SetDefault("devices.topic_prefix", "home")
	v.SetDefault("devices.poll_interval", 100*time.Millisecond)
	v.SetDefault("devices.confirm_timeout", 5*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Interpreter.Backend {
	case "openai", "local", "keyword":
	default:
		return fmt.Errorf("config: unknown interpreter backend %q", c.Interpreter.Backend)
	}
	if c.TTS.Enabled {
		switch c.TTS.Backend {
		case "piper", "openai":
		default:
			return fmt.Errorf("config: unknown tts backend %q", c.TTS.Backend)
		}
	}
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("config: store.path is required for the sqlite backend")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	switch c.Devices.Backend {
	case "mqtt", "memory":
	default:
		return fmt.Errorf("config: unknown devices backend %q", c.Devices.Backend)
	}
	for i, t := range c.Auth.Tokens {
		if t.Token == "" || t.User == "" {
			return fmt.Errorf("config: auth.tokens[%d] needs both token and user", i)
		}
	}
	if c.Context.Capacity <= 0 {
		return fmt.Errorf("config: context.capacity must be positive, got %d", c.Context.Capacity)
	}
	positive := map[string]time.Duration{
		"context.ttl":                   c.Context.TTL,
		"orchestrator.context_timeout":  c.Orchestrator.ContextTimeout,
		"orchestrator.classify_timeout": c.Orchestrator.ClassifyTimeout,
		"orchestrator.handler_timeout":  c.Orchestrator.HandlerTimeout,
		"devices.poll_interval":         c.Devices.PollInterval,
		"devices.confirm_timeout":       c.Devices.ConfirmTimeout,
	}
	for key, d := range positive {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", key, d)
		}
	}
	// An unconfirmed device command must finish inside the handler deadline.
	smartHome, ok := c.Orchestrator.HandlerTimeouts["smart_home"]
	if !ok {
		smartHome = defaultSmartHomeTimeout
	}
	if smartHome <= c.Devices.ConfirmTimeout {
		return fmt.Errorf("config: orchestrator.handler_timeouts.smart_home (%s) must exceed devices.confirm_timeout (%s)",
			smartHome, c.Devices.ConfirmTimeout)
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
