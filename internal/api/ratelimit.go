package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Endpoint classes for rate limiting.
const (
	classRead  = "read"
	classWrite = "write"
)

// RateLimiter keeps one token bucket per key. Idle buckets are dropped by
// the cleanup loop.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter creates a RateLimiter and starts background cleanup.
func NewRateLimiter() *RateLimiter {
	rl := newRateLimiter()
	go rl.cleanupLoop(5 * time.Minute)
	return rl
}

func newRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket), stop: make(chan struct{})}
}

// Allow reports whether key may make another request under a budget of
// perMinute requests, refilled continuously, with bursts up to perMinute.
func (rl *RateLimiter) Allow(key string, perMinute int) bool {
	if perMinute <= 0 {
		return true
	}
	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)}
		rl.buckets[key] = b
	}
	b.lastAccess = time.Now()
	limiter := b.limiter
	rl.mu.Unlock()
	return limiter.Allow()
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now().Add(-10 * time.Minute))
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) cleanup(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, b := range rl.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

// withRateLimit wraps an authenticated handler with per-user rate limiting.
// When a rate limit is exceeded, the event is logged to the store.
func (s *Server) withRateLimit(handler http.HandlerFunc, class string) http.HandlerFunc {
	limit := s.config.RateLimitRead
	if class == classWrite {
		limit = s.config.RateLimitWrite
	}
	return func(w http.ResponseWriter, r *http.Request) {
		user := getUserFromContext(r.Context())
		if user == nil {
			handler(w, r)
			return
		}
		if !s.rateLimiter.Allow(class+":"+user.UserID, limit) {
			s.metrics.rateLimited.WithLabelValues(class).Inc()
			if err := s.store.InsertRateLimitEvent(user.UserID, clientIP(r), class); err != nil {
				logFor(r.Context()).Error("log rate limit event", "err", err)
			}
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
			return
		}
		handler(w, r)
	}
}

// clientIP extracts the client IP from the request, checking X-Forwarded-For first.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain is the original client
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
