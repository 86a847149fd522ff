package api

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowDeny(t *testing.T) {
	rl := newRateLimiter()

	// Should allow up to the burst
	for i := 0; i < 5; i++ {
		if !rl.Allow("k1", 5) {
			t.Fatalf("expected allow on request %d", i+1)
		}
	}

	// Should deny once the burst is spent
	if rl.Allow("k1", 5) {
		t.Fatal("expected deny after limit reached")
	}
}

func TestRateLimiterKeyIsolation(t *testing.T) {
	rl := newRateLimiter()

	for i := 0; i < 2; i++ {
		rl.Allow("key1", 2)
	}
	if rl.Allow("key1", 2) {
		t.Fatal("key1 should be limited")
	}
	if !rl.Allow("key2", 2) {
		t.Fatal("key2 should be allowed")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := newRateLimiter()
	rl.Allow("stale", 1)
	rl.Allow("fresh", 1)

	rl.mu.Lock()
	rl.buckets["stale"].lastAccess = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.cleanup(time.Now().Add(-10 * time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.buckets["stale"]; ok {
		t.Error("stale bucket not removed")
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Error("fresh bucket removed")
	}
}

func TestRateLimiterZeroLimitAllows(t *testing.T) {
	rl := newRateLimiter()
	for i := 0; i < 10; i++ {
		if !rl.Allow("k", 0) {
			t.Fatal("a zero limit disables limiting")
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"xff single", "1.2.3.4", "9.9.9.9:1234", "1.2.3.4"},
		{"xff chain", "1.2.3.4, 5.6.7.8", "9.9.9.9:1234", "1.2.3.4"},
		{"remote addr", "", "9.9.9.9:1234", "9.9.9.9"},
		{"no port", "", "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
