package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("REALTIME_TOKEN_URL", "http://localhost:3000/api/session")
	t.Setenv("REALTIME_TOKEN_API_KEY", "test-token-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.RealtimeTokenURL != "http://localhost:3000/api/session" {
		t.Errorf("Expected RealtimeTokenURL 'http://localhost:3000/api/session', got '%s'", cfg.RealtimeTokenURL)
	}

	if cfg.RealtimeTokenAPIKey != "test-token-key" {
		t.Errorf("Expected RealtimeTokenAPIKey 'test-token-key', got '%s'", cfg.RealtimeTokenAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("REALTIME_TOKEN_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error when REALTIME_TOKEN_URL is missing for the webrtc backend")
	}
	if !strings.Contains(err.Error(), "REALTIME_TOKEN_URL") {
		t.Errorf("Expected error to name REALTIME_TOKEN_URL, got '%v'", err)
	}
}

func TestLoad_DeepgramBackend(t *testing.T) {
	t.Setenv("REALTIME_TOKEN_URL", "")
	t.Setenv("REALTIME_BACKEND", "deepgram")
	t.Setenv("DEEPGRAM_API_KEY", "")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error when DEEPGRAM_API_KEY is missing for the deepgram backend")
	}

	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestLoad_InvalidBackend(t *testing.T) {
	t.Setenv("REALTIME_TOKEN_URL", "http://localhost:3000/api/session")
	t.Setenv("REALTIME_BACKEND", "carrier-pigeon")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for unknown REALTIME_BACKEND")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REALTIME_TOKEN_URL", "http://localhost:3000/api/session")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.RealtimeBackend != BackendWebRTC {
		t.Errorf("Expected default RealtimeBackend 'webrtc', got '%s'", cfg.RealtimeBackend)
	}

	if cfg.RealtimeModel != "gpt-4o-realtime-preview" {
		t.Errorf("Expected default RealtimeModel 'gpt-4o-realtime-preview', got '%s'", cfg.RealtimeModel)
	}

	if cfg.InitTimeout() != 15*time.Second {
		t.Errorf("Expected default InitTimeout 15s, got %v", cfg.InitTimeout())
	}

	if cfg.RealtimeEventQueue != 256 {
		t.Errorf("Expected default RealtimeEventQueue 256, got %d", cfg.RealtimeEventQueue)
	}

	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("Expected default ICE server, got %v", cfg.ICEServers)
	}

	if cfg.AudioSampleRate != 48000 {
		t.Errorf("Expected default AudioSampleRate 48000, got %d", cfg.AudioSampleRate)
	}

	if cfg.AudioFrameSize != 960 {
		t.Errorf("Expected default AudioFrameSize 960, got %d", cfg.AudioFrameSize)
	}

	if cfg.AudioBufferSize != 16000 {
		t.Errorf("Expected default AudioBufferSize 16000, got %d", cfg.AudioBufferSize)
	}
}

func TestLoad_ICEServerList(t *testing.T) {
	t.Setenv("REALTIME_TOKEN_URL", "http://localhost:3000/api/session")
	t.Setenv("ICE_SERVERS", "stun:a.example.com:3478,turn:b.example.com:3478")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if len(cfg.ICEServers) != 2 || cfg.ICEServers[1] != "turn:b.example.com:3478" {
		t.Errorf("Expected two ICE servers, got %v", cfg.ICEServers)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_KEY", "test-value")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	t.Setenv("REALTIME_TOKEN_URL", "http://localhost:3000/api/session")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check resilience defaults
	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}

	if cfg.BreakerResetTimeout() != 30*time.Second {
		t.Errorf("Expected default BreakerResetTimeout 30s, got %v", cfg.BreakerResetTimeout())
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	t.Setenv("REALTIME_TOKEN_URL", "http://localhost:3000/api/session")
	// Clear LOG_LEVEL to ensure we get the default; t.Setenv restores it afterwards
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if cfg.LogFile != "" {
		t.Errorf("Expected empty default LogFile, got '%s'", cfg.LogFile)
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}

func TestConfig_InvalidLogLevel(t *testing.T) {
	t.Setenv("REALTIME_TOKEN_URL", "http://localhost:3000/api/session")
	t.Setenv("LOG_LEVEL", "verbose")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for unknown LOG_LEVEL")
	}
}
