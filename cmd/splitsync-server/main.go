package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/azula9713/yae-their-share/internal/api"
	"github.com/azula9713/yae-their-share/internal/serverdb"
)

// Version may be set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	// Route to the token subcommand if present
	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(runToken(os.Args[2:]))
	}

	cfg := api.LoadConfig()
	cfg.Version = Version
	slog.SetDefault(slog.New(newHandler(cfg)))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	store, err := serverdb.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open server db", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	srv, err := api.NewServer(cfg, store)
	if err != nil {
		slog.Error("create server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(); err != nil {
		slog.Error("start server", "err", err)
		os.Exit(1)
	}
	slog.Info("server started", "addr", srv.Addr().String())

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newHandler picks the log handler: json (default), text, or tint for
// colored local development output.
func newHandler(cfg api.Config) slog.Handler {
	level := parseLevel(cfg.LogLevel)
	switch strings.ToLower(cfg.LogFormat) {
	case "text":
		return slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	case "tint":
		return tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	default:
		return slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
}
