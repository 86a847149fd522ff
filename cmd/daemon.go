package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/output"
	"github.com/azula9713/yae-their-share/internal/syncstatus"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep syncing in the foreground until interrupted",
	Long: `Runs the sync engine with its periodic timer and a connectivity probe.
A sync starts whenever the server comes back and every sync_interval while it
stays reachable. With --metrics the engine counters are served for Prometheus.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		a, err := openAppOrFail(ctx, appOptions{registerer: reg})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireUser(); err != nil {
			output.Error("%v", err)
			return err
		}
		if a.engine.OfflineOnly() {
			err := errors.New("local storage unavailable, refusing to run the daemon")
			output.Error("%v", err)
			return err
		}

		metricsAddr, _ := cmd.Flags().GetString("metrics")
		if metricsAddr != "" {
			srv := serveMetrics(metricsAddr, reg)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		unsub := a.engine.Subscribe(logStatusChange())
		defer unsub()

		if err := a.engine.Start(ctx); err != nil {
			output.Error("%v", err)
			return err
		}
		// The first probe reports online to the running engine, which syncs.
		if a.probe != nil {
			a.probe.Start(ctx)
		}

		output.Info("syncing %s as %s every %s (ctrl+c to stop)", a.cfg.RemoteURL, a.engine.UserID(), a.engine.Config().SyncInterval)
		<-ctx.Done()
		output.Info("stopping")
		return nil
	},
}

// logStatusChange logs state and connectivity transitions once each.
func logStatusChange() func(syncstatus.Status) {
	var last syncstatus.Status
	first := true
	return func(st syncstatus.Status) {
		defer func() { last, first = st, false }()
		if first {
			return
		}
		if st.IsOnline != last.IsOnline {
			slog.Info("daemon: connectivity", "online", st.IsOnline)
		}
		if st.State != last.State || st.Error != last.Error {
			if st.State == syncstatus.StateError {
				slog.Warn("daemon: sync error", "err", st.Error, "pending", st.PendingOperations)
			} else {
				slog.Info("daemon: state", "state", st.State, "pending", st.PendingOperations)
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("daemon: metrics server", "addr", addr, "err", err)
		}
	}()
	slog.Info("daemon: serving metrics", "addr", addr)
	return srv
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().String("metrics", "", "Serve Prometheus metrics on this address (e.g. :9464)")
}
