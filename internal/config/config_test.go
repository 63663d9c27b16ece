package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HTTP_PORT", "LOG_LEVEL", "LOG_FORMAT", "DATABASE_URL", "REDIS_URL",
		"BATCH_SIZE", "BATCH_TIMEOUT_MS", "ENABLE_COST_CALCULATION",
		"ENABLE_FANOUT", "ALERT_EVAL_INTERVAL_SECONDS",
		"SPAN_RETENTION_DAYS", "RESOLVED_EVENT_RETENTION_DAYS", "RETENTION_SWEEP_INTERVAL_MINUTES",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/agenttrace")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchTimeout)
	assert.True(t, cfg.EnableCostCalculation)
	assert.True(t, cfg.EnableFanout)
	assert.Equal(t, 30*24*time.Hour, cfg.SpanRetention)
	assert.Equal(t, 90*24*time.Hour, cfg.ResolvedEventRetention)
	assert.Equal(t, time.Hour, cfg.RetentionSweepInterval)
}

func TestLoadMissingDatabaseURLFails(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/agenttrace")
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadHonorsOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/agenttrace")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("ENABLE_FANOUT", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.False(t, cfg.EnableFanout)
}
