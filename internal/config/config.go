// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all worker configuration.
//
// Secret values (CredentialKey, InferenceAPIKey) must never be logged.
type Config struct {
	Port              string
	DBPath            string
	CredentialKey     string
	InferenceAPIKey   string
	InferenceURL      string
	InferenceModel    string
	ReconcileInterval time.Duration
	RequestTimeout    time.Duration
	ProbeTimeout      time.Duration
	RateLimit         RateLimitConfig
}

// RateLimitConfig controls per-user message throttling.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

const (
	defaultInferenceURL   = "https://api-inference.huggingface.co/models"
	defaultInferenceModel = "mistralai/Mistral-7B-Instruct-v0.2"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8090"),
		DBPath:            getEnv("DB_PATH", ""),
		CredentialKey:     getEnv("BOT_CREDENTIAL_KEY", ""),
		InferenceAPIKey:   getEnv("HF_API_KEY", ""),
		InferenceURL:      getEnv("HF_API_URL", defaultInferenceURL),
		InferenceModel:    getEnv("HF_MODEL", defaultInferenceModel),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 30*time.Second),
		RequestTimeout:    getEnvDuration("INFERENCE_TIMEOUT", 30*time.Second),
		ProbeTimeout:      getEnvDuration("HEALTH_PROBE_TIMEOUT", 5*time.Second),
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 6),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 3),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// Error messages name the variable, never its value.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.CredentialKey == "" {
		return fmt.Errorf("BOT_CREDENTIAL_KEY is required")
	}
	if c.InferenceAPIKey == "" {
		return fmt.Errorf("HF_API_KEY is required")
	}
	if c.InferenceURL == "" {
		return fmt.Errorf("HF_API_URL cannot be empty")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be > 0")
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit settings must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
