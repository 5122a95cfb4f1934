package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Fixed audio parameters. The output rate is dictated by the endpoint and is not negotiable.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
	Channels         = 1
)

// Defaults
const (
	DefaultModel          = "gemini-2.5-flash-preview-native-audio-dialog"
	DefaultBackend        = BackendGenAI
	DefaultEndpoint       = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultAddr           = ":3000"
	DefaultFrameSamples   = 1024
	DefaultOutboundBuffer = 32
	DefaultConnectTimeout = 15 * time.Second
	DefaultSpeakerBuffer  = 100 * time.Millisecond
)

// Remote endpoint backends.
const (
	BackendGenAI     = "genai"
	BackendWebSocket = "websocket"
)

// Config represents the complete client configuration
type Config struct {
	Gemini    GeminiConfig   `yaml:"gemini"`
	Audio     AudioConfig    `yaml:"audio"`
	Playback  PlaybackConfig `yaml:"playback"`
	HTTP      HTTPConfig     `yaml:"http"`
	Logging   LoggingConfig  `yaml:"logging"`
	AutoStart bool           `yaml:"autostart"`
}

// GeminiConfig describes the remote duplex session endpoint.
type GeminiConfig struct {
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	Backend        string        `yaml:"backend"`
	Endpoint       string        `yaml:"endpoint"`
	SystemPrompt   string        `yaml:"system_prompt"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	FrameSamples   int `yaml:"frame_samples"`
	OutboundBuffer int `yaml:"outbound_buffer"` // frames held between capture and send
}

// PlaybackConfig contains speaker parameters
type PlaybackConfig struct {
	FlushOnInterrupt bool          `yaml:"flush_on_interrupt"`
	SpeakerBuffer    time.Duration `yaml:"speaker_buffer"`
}

// HTTPConfig contains control API configuration
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// Default returns a configuration with every optional field populated.
func Default() *Config {
	return &Config{
		Gemini: GeminiConfig{
			Model:          DefaultModel,
			Backend:        DefaultBackend,
			Endpoint:       DefaultEndpoint,
			ConnectTimeout: DefaultConnectTimeout,
		},
		Audio: AudioConfig{
			FrameSamples:   DefaultFrameSamples,
			OutboundBuffer: DefaultOutboundBuffer,
		},
		Playback: PlaybackConfig{
			SpeakerBuffer: DefaultSpeakerBuffer,
		},
		HTTP: HTTPConfig{
			Addr: DefaultAddr,
		},
	}
}

// LoadDotEnv loads .env files into the process environment if present.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Println("No .env file found, falling back to environment variables")
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// ApplyEnv overrides fields from environment variables resolved through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "invalid %s", key)
		}
		*dst = b
		return nil
	}

	str("GEMINI_API_KEY", &c.Gemini.APIKey)
	str("LIVE_VOICE_MODEL", &c.Gemini.Model)
	str("LIVE_VOICE_BACKEND", &c.Gemini.Backend)
	str("LIVE_VOICE_ENDPOINT", &c.Gemini.Endpoint)
	str("LIVE_VOICE_SYSTEM_PROMPT", &c.Gemini.SystemPrompt)
	str("LIVE_VOICE_ADDR", &c.HTTP.Addr)

	if err := boolean("LIVE_VOICE_FLUSH_ON_INTERRUPT", &c.Playback.FlushOnInterrupt); err != nil {
		return err
	}
	if err := boolean("LIVE_VOICE_AUTOSTART", &c.AutoStart); err != nil {
		return err
	}
	if err := boolean("LOG_VERBOSE", &c.Logging.Verbose); err != nil {
		return err
	}
	return nil
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Gemini.Validate(); err != nil {
		return fmt.Errorf("gemini config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if c.Playback.SpeakerBuffer <= 0 {
		return fmt.Errorf("playback config: speaker_buffer must be positive")
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("http config: addr is required")
	}
	return nil
}

// Validate validates the endpoint configuration
func (g *GeminiConfig) Validate() error {
	if g.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if g.Model == "" {
		return fmt.Errorf("model is required")
	}
	switch g.Backend {
	case BackendGenAI:
	case BackendWebSocket:
		if !strings.HasPrefix(g.Endpoint, "ws://") && !strings.HasPrefix(g.Endpoint, "wss://") {
			return fmt.Errorf("endpoint must be a ws:// or wss:// URL, got %q", g.Endpoint)
		}
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendGenAI, BackendWebSocket, g.Backend)
	}
	if g.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive")
	}
	return nil
}

// BaseURL returns the scheme and host of the endpoint. The genai SDK appends
// the service path itself.
func (g *GeminiConfig) BaseURL() string {
	u, err := url.Parse(g.Endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

// Validate validates capture parameters
func (a *AudioConfig) Validate() error {
	if a.FrameSamples <= 0 {
		return fmt.Errorf("frame_samples must be positive")
	}
	if a.OutboundBuffer <= 0 {
		return fmt.Errorf("outbound_buffer must be positive")
	}
	return nil
}
