package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Realtime backends
const (
	BackendWebRTC   = "webrtc"
	BackendDeepgram = "deepgram"
)

// Config holds all configuration for the voice scribe service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080" validate:"required"`
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:"9090"`

	// Realtime session configuration
	RealtimeBackend     string   `envconfig:"REALTIME_BACKEND" default:"webrtc" validate:"oneof=webrtc deepgram"`
	RealtimeTokenURL    string   `envconfig:"REALTIME_TOKEN_URL" validate:"required_if=RealtimeBackend webrtc"`
	RealtimeTokenAPIKey string   `envconfig:"REALTIME_TOKEN_API_KEY"`                                      // Bearer token for the token issuer, if set
	RealtimeBaseURL     string   `envconfig:"REALTIME_BASE_URL" default:"https://api.openai.com/v1/realtime"` // SDP handshake endpoint
	RealtimeModel       string   `envconfig:"REALTIME_MODEL" default:"gpt-4o-realtime-preview" validate:"required"`
	RealtimeInitTimeout int      `envconfig:"REALTIME_INIT_TIMEOUT" default:"15" validate:"min=1"`      // seconds
	RealtimeEventQueue  int      `envconfig:"REALTIME_EVENT_QUEUE_SIZE" default:"256" validate:"min=1"` // Bounded inbound event channel
	ICEServers          []string `envconfig:"ICE_SERVERS" default:"stun:stun.l.google.com:19302"`

	// Deepgram STT API configuration (alternate backend)
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" validate:"required_if=RealtimeBackend deepgram"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2-medical"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"` // Language code (en, es, fr, etc.)

	// Audio device configuration
	AudioSampleRate   int    `envconfig:"AUDIO_SAMPLE_RATE" default:"48000" validate:"min=8000"` // Microphone capture rate
	AudioFrameSize    int    `envconfig:"AUDIO_FRAME_SIZE" default:"960" validate:"min=80"`      // Samples per captured frame (20ms at 48kHz)
	AudioBufferSize   int    `envconfig:"AUDIO_BUFFER_SIZE" default:"16000" validate:"min=160"`  // Playback ring buffer in samples
	AudioInputDevice  string `envconfig:"AUDIO_INPUT_DEVICE" default:""`                         // Empty selects the system default
	AudioOutputDevice string `envconfig:"AUDIO_OUTPUT_DEVICE" default:""`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5" validate:"min=1"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30" validate:"min=1"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	LogFile        string `envconfig:"LOG_FILE" default:""`            // Rotated log file; stdout only when empty
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// InitTimeout returns the realtime init bound as a duration
func (c *Config) InitTimeout() time.Duration {
	return time.Duration(c.RealtimeInitTimeout) * time.Second
}

// BreakerResetTimeout returns the circuit breaker recovery delay
func (c *Config) BreakerResetTimeout() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and cross-field requirements
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid config: %w", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed '%s' check", envName(fe.StructField()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// envName maps a struct field back to its environment key for error messages
func envName(field string) string {
	switch field {
	case "RealtimeTokenURL":
		return "REALTIME_TOKEN_URL"
	case "RealtimeBaseURL":
		return "REALTIME_BASE_URL"
	case "RealtimeBackend":
		return "REALTIME_BACKEND"
	case "DeepgramAPIKey":
		return "DEEPGRAM_API_KEY"
	case "LogLevel":
		return "LOG_LEVEL"
	}
	return field
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
