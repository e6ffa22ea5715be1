// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits with an
// error. A local .env file is honoured when present.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for both pipeline processes.
type Config struct {
	ConsumerPort string
	GatewayPort  string
	DatabaseURL  string
	RedisURL     string

	IdentityBaseURL   string
	IdentityTimeoutMS int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	EventMaxRetries   int // handler retries before dead-lettering
	PremiumSweepHours int // cron interval for the premium-expiry sweep
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	// Optional: ignore the error, env vars may come from the environment.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		return nil, fmt.Errorf("IDENTITY_SERVICE_URL is required")
	}

	cfg := &Config{
		ConsumerPort:      envOr("CONSUMER_PORT", "8083"),
		GatewayPort:       envOr("GATEWAY_PORT", "8084"),
		DatabaseURL:       dbURL,
		RedisURL:          redisURL,
		IdentityBaseURL:   identityURL,
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:          envOr("SMTP_FROM", "noreply@ja.example"),
	}

	var err error
	if cfg.IdentityTimeoutMS, err = envIntOr("IDENTITY_TIMEOUT_MS", 3000); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = envIntOr("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.EventMaxRetries, err = envIntOr("EVENT_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.PremiumSweepHours, err = envIntOr("PREMIUM_SWEEP_HOURS", 1); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return v, nil
}
