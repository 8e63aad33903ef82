package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the interview conversation service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// DeploymentMode controls provider preference: "production" prefers the
	// paid primary provider, anything else uses the default chain order.
	DeploymentMode string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	GeminiAPIKey string
	GeminiModel  string

	ProviderTimeout time.Duration
	STTTimeout      time.Duration

	DatabaseURL string
	RedisURL    string

	MemoryMirrorTTL time.Duration

	DefaultMaxQuestions int
	InterviewLanguage   string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "intervyn"),
		AllowAnyOrigin:      false,
		DeploymentMode:      envOrDefault("APP_DEPLOYMENT_MODE", "development"),
		OpenAIAPIKey:        envTrimmed("OPENAI_API_KEY"),
		OpenAIBaseURL:       envTrimmed("OPENAI_BASE_URL"),
		OpenAIModel:         envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:        envTrimmed("GEMINI_API_KEY"),
		GeminiModel:         envOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		DatabaseURL:         envTrimmed("DATABASE_URL"),
		RedisURL:            envTrimmed("REDIS_URL"),
		InterviewLanguage:   envOrDefault("INTERVIEW_LANGUAGE", "tr"),
		ShutdownTimeout:     15 * time.Second,
		ProviderTimeout:     30 * time.Second,
		STTTimeout:          45 * time.Second,
		MemoryMirrorTTL:     7 * 24 * time.Hour,
		DefaultMaxQuestions: 10,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderTimeout, err = durationFromEnv("LLM_PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.STTTimeout, err = durationFromEnv("STT_TIMEOUT", cfg.STTTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryMirrorTTL, err = durationFromEnv("MEMORY_MIRROR_TTL", cfg.MemoryMirrorTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultMaxQuestions, err = intFromEnv("INTERVIEW_MAX_QUESTIONS", cfg.DefaultMaxQuestions)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.ProviderTimeout < time.Second {
		return Config{}, fmt.Errorf("LLM_PROVIDER_TIMEOUT must be at least 1s")
	}
	if cfg.STTTimeout < time.Second {
		return Config{}, fmt.Errorf("STT_TIMEOUT must be at least 1s")
	}
	if cfg.MemoryMirrorTTL < time.Minute {
		return Config{}, fmt.Errorf("MEMORY_MIRROR_TTL must be at least 1m")
	}
	if cfg.DefaultMaxQuestions <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_MAX_QUESTIONS must be positive")
	}

	return cfg, nil
}

// Production reports whether the paid provider should be preferred.
func (c Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.DeploymentMode), "production")
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
