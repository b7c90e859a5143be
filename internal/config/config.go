package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lexiqai/tts-api/internal/engine"
	"github.com/lexiqai/tts-api/internal/tts"
)

// envPrefix scopes every setting, e.g. TTS_REPO_ID
const envPrefix = "TTS"

// Bounds enforced at startup
const (
	MinSampleRate = 8000
	MaxSampleRate = 48000
	MinMaxChars   = 1
	MaxMaxChars   = 5000
	SpeedFloor    = 0.5
	SpeedCeiling  = 2.0
)

// Engine transports
const (
	TransportGRPC      = engine.TransportGRPC
	TransportWebSocket = engine.TransportWebSocket
)

// Config holds all configuration for the TTS API service.
// It is loaded once at startup and read-only afterwards.
type Config struct {
	// Model / engine
	RepoID     string `envconfig:"REPO_ID" default:"hexgrad/Kokoro-82M"`
	SampleRate int    `envconfig:"SAMPLE_RATE" default:"24000"` // Written into every WAV header, never resampled

	// API behavior
	MaxChars     int      `envconfig:"MAX_CHARS" default:"500"`
	DefaultLang  string   `envconfig:"DEFAULT_LANG" default:"a"` // a=en-US, b=en-GB, f=fr
	DefaultVoice string   `envconfig:"DEFAULT_VOICE" default:"af_bella"`
	MinSpeed     float64  `envconfig:"MIN_SPEED" default:"0.8"`
	MaxSpeed     float64  `envconfig:"MAX_SPEED" default:"1.2"`
	CORSOrigins  []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://127.0.0.1:5173"`

	// Server configuration
	Port             string `envconfig:"PORT" default:"8000"`
	SynthesisTimeout int    `envconfig:"SYNTHESIS_TIMEOUT" default:"0"` // seconds, 0 disables

	// Engine sidecar
	EngineTransport  string `envconfig:"ENGINE_TRANSPORT" default:"grpc"`      // grpc or ws
	EngineURL        string `envconfig:"ENGINE_URL" default:"localhost:50051"` // gRPC target or ws:// base URL
	EngineTimeout    int    `envconfig:"ENGINE_TIMEOUT" default:"120"`         // seconds to construct a pipeline
	EngineConcurrent bool   `envconfig:"ENGINE_CONCURRENT" default:"false"`    // engine is reentrant per pipeline

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// ConfigurationError reports an invalid setting. The process must not start.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s_%s: %s", envPrefix, e.Field, e.Reason)
}

// Load reads configuration from environment variables.
// It first attempts to load from .env file if it exists, then from environment.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every bound; it returns *ConfigurationError on the first violation
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RepoID) == "" {
		return &ConfigurationError{Field: "REPO_ID", Reason: "must not be empty"}
	}
	if c.SampleRate < MinSampleRate || c.SampleRate > MaxSampleRate {
		return &ConfigurationError{
			Field:  "SAMPLE_RATE",
			Reason: fmt.Sprintf("%d outside [%d, %d]", c.SampleRate, MinSampleRate, MaxSampleRate),
		}
	}
	if c.MaxChars < MinMaxChars || c.MaxChars > MaxMaxChars {
		return &ConfigurationError{
			Field:  "MAX_CHARS",
			Reason: fmt.Sprintf("%d outside [%d, %d]", c.MaxChars, MinMaxChars, MaxMaxChars),
		}
	}

	lang, err := tts.ParseLanguage(c.DefaultLang)
	if err != nil {
		return &ConfigurationError{Field: "DEFAULT_LANG", Reason: err.Error()}
	}
	if c.DefaultVoice == "" {
		return &ConfigurationError{Field: "DEFAULT_VOICE", Reason: "must not be empty"}
	}
	if err := tts.ValidateVoiceLanguage(c.DefaultVoice, lang); err != nil {
		return &ConfigurationError{Field: "DEFAULT_VOICE", Reason: err.Error()}
	}

	if err := checkSpeed("MIN_SPEED", c.MinSpeed); err != nil {
		return err
	}
	if err := checkSpeed("MAX_SPEED", c.MaxSpeed); err != nil {
		return err
	}
	if c.MinSpeed > c.MaxSpeed {
		return &ConfigurationError{
			Field:  "MIN_SPEED",
			Reason: fmt.Sprintf("%v is greater than max speed %v", c.MinSpeed, c.MaxSpeed),
		}
	}

	switch c.EngineTransport {
	case TransportGRPC, TransportWebSocket:
	default:
		return &ConfigurationError{
			Field:  "ENGINE_TRANSPORT",
			Reason: fmt.Sprintf("%q is not one of %s, %s", c.EngineTransport, TransportGRPC, TransportWebSocket),
		}
	}
	if c.EngineURL == "" {
		return &ConfigurationError{Field: "ENGINE_URL", Reason: "must not be empty"}
	}
	if c.EngineTimeout < 0 {
		return &ConfigurationError{Field: "ENGINE_TIMEOUT", Reason: "must not be negative"}
	}
	if c.SynthesisTimeout < 0 {
		return &ConfigurationError{Field: "SYNTHESIS_TIMEOUT", Reason: "must not be negative"}
	}
	return nil
}

func checkSpeed(field string, v float64) error {
	// Written as a negated range so NaN is rejected
	if !(v >= SpeedFloor && v <= SpeedCeiling) {
		return &ConfigurationError{
			Field:  field,
			Reason: fmt.Sprintf("%v outside [%v, %v]", v, SpeedFloor, SpeedCeiling),
		}
	}
	return nil
}

// DefaultLanguage returns the validated default language code
func (c *Config) DefaultLanguage() tts.LanguageCode {
	return tts.LanguageCode(c.DefaultLang)
}

// Limits returns the request bounds derived from the settings
func (c *Config) Limits() tts.Limits {
	return tts.Limits{
		MaxChars: c.MaxChars,
		MinSpeed: c.MinSpeed,
		MaxSpeed: c.MaxSpeed,
	}
}

// EngineLoadTimeout bounds the construction of one pipeline
func (c *Config) EngineLoadTimeout() time.Duration {
	return time.Duration(c.EngineTimeout) * time.Second
}

// SynthesisDeadline is the per-request deadline applied by the HTTP layer; zero disables it
func (c *Config) SynthesisDeadline() time.Duration {
	return time.Duration(c.SynthesisTimeout) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
