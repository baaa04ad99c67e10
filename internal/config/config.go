package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the call agent service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Telephony provider (Azure Communication Services Call Automation).
	ACSConnectionString string
	ACSPhoneNumber      string
	TargetPhoneNumber   string
	CallbackURIHost     string
	SpeechEndpoint      string
	TTSVoiceName        string
	GreetingText        string

	// Decision function (Azure OpenAI).
	BrainAdapterMode      string
	OpenAIEndpoint        string
	OpenAIKey             string
	OpenAIDeploymentModel string
	DecisionTimeout       time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "agentdial"),
		AllowAnyOrigin:        false,
		ACSConnectionString:   stringsTrimSpace("ACS_CONNECTION_STRING"),
		ACSPhoneNumber:        stringsTrimSpace("ACS_PHONE_NUMBER"),
		TargetPhoneNumber:     stringsTrimSpace("TARGET_PHONE_NUMBER"),
		CallbackURIHost:       stringsTrimSpace("CALLBACK_URI_HOST"),
		SpeechEndpoint:        stringsTrimSpace("AZURE_SPEECH_SERVICE_ENDPOINT"),
		TTSVoiceName:          envOrDefault("TTS_VOICE_NAME", "en-US-AvaMultilingualNeural"),
		GreetingText:          envOrDefault("APP_GREETING_TEXT", "Hey You reached Agent T. What can I do for you?"),
		BrainAdapterMode:      envOrDefault("BRAIN_ADAPTER_MODE", "auto"),
		OpenAIEndpoint:        stringsTrimSpace("AZURE_OPENAI_SERVICE_ENDPOINT"),
		OpenAIKey:             stringsTrimSpace("AZURE_OPENAI_SERVICE_KEY"),
		OpenAIDeploymentModel: envOrDefault("AZURE_OPENAI_DEPLOYMENT_MODEL", "gpt-4"),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:       15 * time.Second,
		DecisionTimeout:       30 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DecisionTimeout, err = durationFromEnv("BRAIN_DECISION_TIMEOUT", cfg.DecisionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	// ACS rejects cognitive-services endpoints with a trailing slash.
	cfg.SpeechEndpoint = strings.TrimSuffix(cfg.SpeechEndpoint, "/")
	cfg.CallbackURIHost = strings.TrimSuffix(cfg.CallbackURIHost, "/")

	if cfg.DecisionTimeout < time.Second {
		return Config{}, fmt.Errorf("BRAIN_DECISION_TIMEOUT must be at least 1s")
	}
	if strings.TrimSpace(cfg.GreetingText) == "" {
		return Config{}, fmt.Errorf("APP_GREETING_TEXT must not be empty")
	}

	return cfg, nil
}

// CallbackURL is the webhook address handed to the telephony provider.
func (c Config) CallbackURL() string {
	return c.CallbackURIHost + "/api/callbacks"
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
