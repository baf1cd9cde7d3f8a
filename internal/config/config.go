package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	RedisURL     string
	DataDir      string
	BaselineLang string        // language the dialogue documents are authored in
	DefaultLang  string        // language served when a request names none; empty means baseline
	SessionTTL   time.Duration // how long session snapshots survive in storage
	TickInterval time.Duration // server-side typewriter cadence
	PacingFile   string        // optional YAML pacing overrides
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Environment:  getEnv("ENVIRONMENT", "development"),
		LogLevel:     parseLogLevel(getEnv("LOG_LEVEL", "info")),
		RedisURL:     getEnv("REDIS_URL", "localhost:6379"),
		DataDir:      getEnv("DATA_DIR", "./data"),
		BaselineLang: getEnv("BASELINE_LANG", "en"),
		DefaultLang:  getEnv("DEFAULT_LANG", ""),
		PacingFile:   getEnv("PACING_FILE", ""),
	}

	ttl, err := time.ParseDuration(getEnv("SESSION_TTL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	cfg.SessionTTL = ttl

	tickMS, err := strconv.Atoi(getEnv("TICK_MS", "50"))
	if err != nil || tickMS <= 0 {
		return nil, fmt.Errorf("invalid TICK_MS: %q", getEnv("TICK_MS", "50"))
	}
	cfg.TickInterval = time.Duration(tickMS) * time.Millisecond

	return cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
