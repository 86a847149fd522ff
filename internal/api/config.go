package api

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNoSecret is returned by Validate when no token signing secret is set.
var ErrNoSecret = errors.New("SPLITSYNC_SERVER_JWT_SECRET is required")

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	ShutdownTimeout time.Duration
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	JWTSecret string
	TokenTTL  time.Duration // lifetime of tokens minted by the token command (default: 30 days)

	RateLimitRead  int // GET /v1/records* per user per minute (default: 240)
	RateLimitWrite int // POST/PUT/DELETE /v1/records* per user per minute (default: 120)

	RateLimitEventRetention time.Duration // retention period for rate limit events (default: 30 days)

	Version string // reported by /healthz; set by the binary, not the environment
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		DBPath:          "./data/server.db",
		ShutdownTimeout: 30 * time.Second,
		LogFormat:       "json",
		LogLevel:        "info",

		TokenTTL: 30 * 24 * time.Hour,

		RateLimitRead:  240,
		RateLimitWrite: 120,

		RateLimitEventRetention: 30 * 24 * time.Hour,
	}

	if v := os.Getenv("SPLITSYNC_SERVER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SPLITSYNC_SERVER_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SPLITSYNC_SERVER_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("SPLITSYNC_SERVER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("SPLITSYNC_SERVER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.JWTSecret = os.Getenv("SPLITSYNC_SERVER_JWT_SECRET")
	if v := os.Getenv("SPLITSYNC_SERVER_TOKEN_TTL"); v != "" {
		if d := parseDaysDuration(v); d > 0 {
			cfg.TokenTTL = d
		}
	}

	if v := os.Getenv("SPLITSYNC_SERVER_RATE_LIMIT_READ"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitRead = n
		}
	}
	if v := os.Getenv("SPLITSYNC_SERVER_RATE_LIMIT_WRITE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitWrite = n
		}
	}
	if v := os.Getenv("SPLITSYNC_SERVER_RATE_LIMIT_EVENT_RETENTION"); v != "" {
		if d := parseDaysDuration(v); d > 0 {
			cfg.RateLimitEventRetention = d
		}
	}

	return cfg
}

// Validate reports configuration the server cannot start without.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrNoSecret
	}
	return nil
}

// parseDaysDuration parses a string like "90d", "30d" into a time.Duration.
// Falls back to time.ParseDuration for standard Go durations.
func parseDaysDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		numStr := strings.TrimSuffix(s, "d")
		if n, err := strconv.Atoi(numStr); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 0
}
