// Package config loads process configuration from the environment (and an
// optional .env file), with validation and production-ready defaults,
// matching the source's env-driven configuration style.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the process needs to wire
// its dependencies.
type Config struct {
	// HTTPPort is the port the API server listens on.
	HTTPPort string
	// LogLevel is one of debug/info/warn/error.
	LogLevel string
	// LogFormat is "json" or "text".
	LogFormat string

	DatabaseURL string
	RedisURL    string

	BatchSize             int
	BatchTimeout          time.Duration
	EnableCostCalculation bool
	EnableFanout          bool
	AlertEvalInterval     time.Duration

	SpanRetention          time.Duration
	ResolvedEventRetention time.Duration
	RetentionSweepInterval time.Duration
}

// Load reads configuration from the environment, first loading envPath (if
// it exists; a missing .env file is not an error, matching a
// container-deployed process that supplies env vars directly).
func Load(envPath string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			// A missing .env is expected outside local development; the
			// error is ignored, it is not fatal.
			_ = err
		}
	}

	batchSize, err := strconv.Atoi(getEnvOrDefault("BATCH_SIZE", "100"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid BATCH_SIZE: %w", err)
	}

	batchTimeoutMs, err := strconv.Atoi(getEnvOrDefault("BATCH_TIMEOUT_MS", "1000"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid BATCH_TIMEOUT_MS: %w", err)
	}

	alertEvalSeconds, err := strconv.Atoi(getEnvOrDefault("ALERT_EVAL_INTERVAL_SECONDS", "60"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid ALERT_EVAL_INTERVAL_SECONDS: %w", err)
	}

	enableCost, err := strconv.ParseBool(getEnvOrDefault("ENABLE_COST_CALCULATION", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid ENABLE_COST_CALCULATION: %w", err)
	}

	enableFanout, err := strconv.ParseBool(getEnvOrDefault("ENABLE_FANOUT", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid ENABLE_FANOUT: %w", err)
	}

	spanRetentionDays, err := strconv.Atoi(getEnvOrDefault("SPAN_RETENTION_DAYS", "30"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid SPAN_RETENTION_DAYS: %w", err)
	}

	eventRetentionDays, err := strconv.Atoi(getEnvOrDefault("RESOLVED_EVENT_RETENTION_DAYS", "90"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid RESOLVED_EVENT_RETENTION_DAYS: %w", err)
	}

	retentionSweepMinutes, err := strconv.Atoi(getEnvOrDefault("RETENTION_SWEEP_INTERVAL_MINUTES", "60"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid RETENTION_SWEEP_INTERVAL_MINUTES: %w", err)
	}

	cfg := Config{
		HTTPPort:              getEnvOrDefault("HTTP_PORT", "8080"),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:             getEnvOrDefault("LOG_FORMAT", "json"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		BatchSize:             batchSize,
		BatchTimeout:          time.Duration(batchTimeoutMs) * time.Millisecond,
		EnableCostCalculation: enableCost,
		EnableFanout:          enableFanout,
		AlertEvalInterval:     time.Duration(alertEvalSeconds) * time.Second,

		SpanRetention:          time.Duration(spanRetentionDays) * 24 * time.Hour,
		ResolvedEventRetention: time.Duration(eventRetentionDays) * 24 * time.Hour,
		RetentionSweepInterval: time.Duration(retentionSweepMinutes) * time.Minute,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required settings are present and internally
// consistent.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}
	if c.BatchTimeout <= 0 {
		return fmt.Errorf("BATCH_TIMEOUT_MS must be positive")
	}
	if c.AlertEvalInterval <= 0 {
		return fmt.Errorf("ALERT_EVAL_INTERVAL_SECONDS must be positive")
	}
	if c.SpanRetention <= 0 {
		return fmt.Errorf("SPAN_RETENTION_DAYS must be positive")
	}
	if c.ResolvedEventRetention <= 0 {
		return fmt.Errorf("RESOLVED_EVENT_RETENTION_DAYS must be positive")
	}
	if c.RetentionSweepInterval <= 0 {
		return fmt.Errorf("RETENTION_SWEEP_INTERVAL_MINUTES must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s", c.LogFormat)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
