package api

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"SPLITSYNC_SERVER_LISTEN_ADDR", "SPLITSYNC_SERVER_JWT_SECRET", "SPLITSYNC_SERVER_TOKEN_TTL"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()
	if cfg.ListenAddr != ":8080" || cfg.TokenTTL != 30*24*time.Hour || cfg.RateLimitWrite != 120 {
		t.Errorf("defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != ErrNoSecret {
		t.Errorf("validate: got %v, want ErrNoSecret", err)
	}
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("SPLITSYNC_SERVER_LISTEN_ADDR", ":9999")
	t.Setenv("SPLITSYNC_SERVER_JWT_SECRET", "s3cret")
	t.Setenv("SPLITSYNC_SERVER_TOKEN_TTL", "7d")
	t.Setenv("SPLITSYNC_SERVER_RATE_LIMIT_READ", "10")
	t.Setenv("SPLITSYNC_SERVER_RATE_LIMIT_WRITE", "-1")

	cfg := LoadConfig()
	if cfg.ListenAddr != ":9999" || cfg.JWTSecret != "s3cret" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Errorf("ttl: got %v", cfg.TokenTTL)
	}
	if cfg.RateLimitRead != 10 || cfg.RateLimitWrite != 120 {
		t.Errorf("rate limits: read %d write %d", cfg.RateLimitRead, cfg.RateLimitWrite)
	}
}

func TestParseDaysDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"90d":  90 * 24 * time.Hour,
		"12h":  12 * time.Hour,
		"0d":   0,
		"junk": 0,
	}
	for in, want := range tests {
		if got := parseDaysDuration(in); got != want {
			t.Errorf("parseDaysDuration(%q) = %v, want %v", in, got, want)
		}
	}
}
