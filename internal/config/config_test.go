package config

import (
	"testing"
	"time"
)

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_GREETING_TEXT",
		"ACS_CONNECTION_STRING",
		"ACS_PHONE_NUMBER",
		"TARGET_PHONE_NUMBER",
		"CALLBACK_URI_HOST",
		"AZURE_SPEECH_SERVICE_ENDPOINT",
		"AZURE_OPENAI_SERVICE_ENDPOINT",
		"AZURE_OPENAI_SERVICE_KEY",
		"AZURE_OPENAI_DEPLOYMENT_MODEL",
		"BRAIN_ADAPTER_MODE",
		"BRAIN_DECISION_TIMEOUT",
		"TTS_VOICE_NAME",
		"DATABASE_URL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8000" {
		t.Fatalf("BindAddr = %q, want :8000", cfg.BindAddr)
	}
	if cfg.BrainAdapterMode != "auto" {
		t.Fatalf("BrainAdapterMode = %q, want auto", cfg.BrainAdapterMode)
	}
	if cfg.TTSVoiceName != "en-US-AvaMultilingualNeural" {
		t.Fatalf("TTSVoiceName = %q", cfg.TTSVoiceName)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
}

func TestLoadTrimsTrailingSlashes(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AZURE_SPEECH_SERVICE_ENDPOINT", "https://speech.example.com/")
	t.Setenv("CALLBACK_URI_HOST", "https://tunnel.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SpeechEndpoint != "https://speech.example.com" {
		t.Fatalf("SpeechEndpoint = %q, trailing slash should be trimmed", cfg.SpeechEndpoint)
	}
	if cfg.CallbackURL() != "https://tunnel.example.com/api/callbacks" {
		t.Fatalf("CallbackURL() = %q", cfg.CallbackURL())
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for invalid duration")
	}
}

func TestLoadRejectsTinyDecisionTimeout(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("BRAIN_DECISION_TIMEOUT", "100ms")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for sub-second decision timeout")
	}
}
