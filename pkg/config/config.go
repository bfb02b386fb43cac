// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// BackendURL is the base URL of the interview persistence backend.
	BackendURL string
	// ChannelURL is the endpoint of the live model channel. http(s)
	// schemes are rewritten to ws(s) at dial time.
	ChannelURL string
	APIKey     string

	Model string
	Voice string

	// FlushThreshold is the number of sealed turns that triggers a
	// background transcript flush.
	FlushThreshold int
	// TerminationMargin pads the deferred stop beyond the remaining
	// playback so the closing words are not clipped.
	TerminationMargin time.Duration

	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	// LogLevel is one of debug|info|warn|error.
	LogLevel string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		BackendURL:        envOr("INTERVIEW_BACKEND_URL", "http://localhost:8080"),
		ChannelURL:        envOr("INTERVIEW_CHANNEL_URL", ""),
		APIKey:            strings.TrimSpace(os.Getenv("INTERVIEW_API_KEY")),
		Model:             envOr("INTERVIEW_MODEL", "models/live-v1"),
		Voice:             envOr("INTERVIEW_VOICE", ""),
		FlushThreshold:    envIntOr("INTERVIEW_FLUSH_THRESHOLD", 8),
		TerminationMargin: envDurationOr("INTERVIEW_TERMINATION_MARGIN", 1500*time.Millisecond),
		ConnectTimeout:    envDurationOr("INTERVIEW_CONNECT_TIMEOUT", 15*time.Second),
		RequestTimeout:    envDurationOr("INTERVIEW_REQUEST_TIMEOUT", 10*time.Second),
		LogLevel:          strings.ToLower(envOr("INTERVIEW_LOG_LEVEL", "info")),
	}

	if strings.TrimSpace(cfg.BackendURL) == "" {
		return Config{}, fmt.Errorf("INTERVIEW_BACKEND_URL must not be empty")
	}
	if strings.TrimSpace(cfg.ChannelURL) == "" {
		return Config{}, fmt.Errorf("INTERVIEW_CHANNEL_URL must be set")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return Config{}, fmt.Errorf("INTERVIEW_MODEL must not be empty")
	}
	if cfg.FlushThreshold <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_FLUSH_THRESHOLD must be > 0")
	}
	if cfg.TerminationMargin < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_TERMINATION_MARGIN must be >= 0")
	}
	if cfg.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.RequestTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_REQUEST_TIMEOUT must be > 0")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("INTERVIEW_LOG_LEVEL must be one of debug|info|warn|error")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
