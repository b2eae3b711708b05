package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the planner.
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	Location       *time.Location
	ReportInterval time.Duration

	SuggestionTime         string
	SuggestionPoolSize     int
	SuggestionCooldownDays int
	SuggestionTemplates    string
	StreakLookbackDays     int

	HTTPAddr          string
	NATSURL           string
	NATSSubjectPrefix string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:          env("TELEGRAM_TOKEN"),
		DatabaseURL:            env("DATABASE_URL"),
		ReportInterval:         parseInterval(env("REPORT_INTERVAL_HOURS")),
		SuggestionTime:         env("SUGGESTION_TIME"),
		SuggestionTemplates:    env("SUGGESTION_TEMPLATES"),
		NATSURL:                env("NATS_URL"),
		NATSSubjectPrefix:      env("NATS_SUBJECT_PREFIX"),
		LogLevel:               strings.ToLower(env("LOG_LEVEL")),
		LogFormat:              strings.ToLower(env("LOG_FORMAT")),
		SuggestionPoolSize:     3,
		SuggestionCooldownDays: 7,
		StreakLookbackDays:     365,
		HTTPAddr:               ":8080",
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "missions.db"
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}
	if cfg.SuggestionTime == "" {
		cfg.SuggestionTime = "06:00"
	}
	if cfg.NATSSubjectPrefix == "" {
		cfg.NATSSubjectPrefix = "missions.events"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if addr, ok := os.LookupEnv("HTTP_ADDR"); ok {
		cfg.HTTPAddr = strings.TrimSpace(addr)
	}

	var err error
	if cfg.SuggestionPoolSize, err = positiveInt("SUGGESTION_POOL_SIZE", cfg.SuggestionPoolSize); err != nil {
		return cfg, err
	}
	if cfg.SuggestionCooldownDays, err = positiveInt("SUGGESTION_COOLDOWN_DAYS", cfg.SuggestionCooldownDays); err != nil {
		return cfg, err
	}
	if cfg.StreakLookbackDays, err = positiveInt("STREAK_LOOKBACK_DAYS", cfg.StreakLookbackDays); err != nil {
		return cfg, err
	}

	cfg.Location = time.Local
	if tz := env("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return cfg, fmt.Errorf("TIMEZONE: %w", err)
		}
		cfg.Location = loc
	}

	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return cfg, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func positiveInt(key string, fallback int) (int, error) {
	raw := env(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
