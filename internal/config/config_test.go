package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"TELEGRAM_TOKEN", "DATABASE_URL", "REPORT_INTERVAL_HOURS", "SUGGESTION_TIME",
		"SUGGESTION_POOL_SIZE", "SUGGESTION_COOLDOWN_DAYS", "STREAK_LOOKBACK_DAYS", "TIMEZONE", "NATS_URL",
		"NATS_SUBJECT_PREFIX", "LOG_LEVEL", "LOG_FORMAT", "SUGGESTION_TEMPLATES"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.TelegramToken)
	assert.Equal(t, "missions.db", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Hour, cfg.ReportInterval)
	assert.Equal(t, "06:00", cfg.SuggestionTime)
	assert.Equal(t, 3, cfg.SuggestionPoolSize)
	assert.Equal(t, 7, cfg.SuggestionCooldownDays)
	assert.Equal(t, 365, cfg.StreakLookbackDays)
	assert.Equal(t, "missions.events", cfg.NATSSubjectPrefix)
	assert.Equal(t, time.Local, cfg.Location)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REPORT_INTERVAL_HOURS", "12")
	t.Setenv("SUGGESTION_POOL_SIZE", "5")
	t.Setenv("TIMEZONE", "Europe/Berlin")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, cfg.ReportInterval)
	assert.Equal(t, 5, cfg.SuggestionPoolSize)
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
	assert.Empty(t, cfg.HTTPAddr, "empty HTTP_ADDR disables the API")

	var buf bytes.Buffer
	cfg.Logger(&buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("SUGGESTION_COOLDOWN_DAYS", "-2")
	_, err := Load()
	assert.ErrorContains(t, err, "SUGGESTION_COOLDOWN_DAYS")

	t.Setenv("SUGGESTION_COOLDOWN_DAYS", "")
	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err = Load()
	assert.ErrorContains(t, err, "TIMEZONE")
}
