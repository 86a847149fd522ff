package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/azula9713/yae-their-share/internal/serverdb"
)

// Server is the HTTP API server for splitsync-server.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	tokens      *TokenIssuer
	metrics     *Metrics
	rateLimiter *RateLimiter
	cancel      context.CancelFunc
	addr        net.Addr
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg Config, store *serverdb.ServerDB) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		config:      cfg,
		store:       store,
		tokens:      NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		metrics:     NewMetrics(store),
		rateLimiter: NewRateLimiter(),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Tokens returns the issuer used to verify bearer tokens.
func (s *Server) Tokens() *TokenIssuer {
	return s.tokens
}

// Handler returns the routed handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Addr returns the bound listen address once Start has returned.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr()

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	// Periodically prune old rate limit events
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("cleanup panic", "panic", r)
			}
		}()
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.store.CleanupRateLimitEvents(s.config.RateLimitEventRetention)
				if err != nil {
					slog.Error("cleanup rate limit events", "err", err)
				} else if n > 0 {
					slog.Info("cleaned up rate limit events", "count", n)
				}
			}
		}
	}()

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.rateLimiter.Stop()
	return s.http.Shutdown(ctx)
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Records
	mux.HandleFunc("POST /v1/records", s.requireAuth(s.withRateLimit(s.handleCreateRecord, classWrite)))
	mux.HandleFunc("GET /v1/records", s.requireAuth(s.withRateLimit(s.handleListRecords, classRead)))
	mux.HandleFunc("GET /v1/records/{id}", s.requireAuth(s.withRateLimit(s.handleGetRecord, classRead)))
	mux.HandleFunc("PUT /v1/records/{id}", s.requireAuth(s.withRateLimit(s.handleUpdateRecord, classWrite)))
	mux.HandleFunc("DELETE /v1/records/{id}", s.requireAuth(s.withRateLimit(s.handleDeleteRecord, classWrite)))

	return chain(mux, requestContextMiddleware, recoveryMiddleware, accessMiddleware(s.metrics), maxBytesMiddleware(1<<20))
}

// handleHealth returns a health check response, pinging the server DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	body := map[string]string{"status": "ok"}
	if s.config.Version != "" {
		body["version"] = s.config.Version
	}
	writeJSON(w, http.StatusOK, body)
}
