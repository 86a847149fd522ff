package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/azula9713/yae-their-share/internal/conflict"
	"github.com/azula9713/yae-their-share/internal/connectivity"
	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/output"
	"github.com/azula9713/yae-their-share/internal/suggest"
	"github.com/azula9713/yae-their-share/internal/syncclient"
	"github.com/azula9713/yae-their-share/internal/syncconfig"
	"github.com/azula9713/yae-their-share/internal/syncengine"
)

// errNotLoggedIn is returned by commands that need a signed-in user.
var errNotLoggedIn = errors.New("not logged in (run 'splitsync login')")

// app bundles what a command needs to work with the local store and the
// remote: the engine, its records client and the connectivity oracle.
type app struct {
	cfg    *syncconfig.Config
	client *syncclient.Client
	oracle connectivity.Oracle
	probe  *connectivity.Probe // nil with --offline
	engine *syncengine.Engine
}

type appOptions struct {
	// clientTimeout bounds each remote call; zero keeps the client default.
	clientTimeout time.Duration
	registerer    prometheus.Registerer
}

// openApp loads the config, opens the local store and brings the engine's
// signed-in user in line with the config.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	c, err := loadedConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	path, err := c.DatabasePath()
	if err != nil {
		return nil, err
	}
	policy, err := conflict.ParsePolicy(c.ConflictPolicy)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: c}
	a.client = syncclient.New(c.RemoteURL, c.Token, syncclient.Options{
		Timeout:         opts.clientTimeout,
		BreakerFailures: uint32(c.BreakerFailures),
	})
	if offlineFlag {
		a.oracle = connectivity.NewManual(false)
	} else {
		a.probe = connectivity.NewProbe(func(ctx context.Context) error {
			_, err := a.client.HealthCheck(ctx)
			return err
		}, c.ProbeInterval)
		a.oracle = a.probe
	}

	a.engine, err = syncengine.Open(path, a.client, a.oracle, syncengine.Config{
		SyncInterval:  c.SyncInterval,
		MaxRetries:    c.MaxRetries,
		BatchSize:     c.BatchSize,
		Policy:        policy,
		RetentionDays: c.OperationRetentionDays,
		Registerer:    opts.registerer,
	})
	if err != nil {
		return nil, err
	}
	if a.engine.OfflineOnly() {
		output.Warning("local storage unavailable, changes will not be saved")
	}

	if err := a.syncUser(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// syncUser makes the engine's user match the configured one. Switching
// users purges the previous user's local data first.
func (a *app) syncUser(ctx context.Context) error {
	current := a.engine.UserID()
	if current == a.cfg.UserID {
		return nil
	}
	if current != "" {
		if err := a.engine.SetUserID(ctx, ""); err != nil {
			return err
		}
	}
	if a.cfg.UserID == "" {
		return nil
	}
	return a.engine.SetUserID(ctx, a.cfg.UserID)
}

// Close stops the probe and closes the engine.
func (a *app) Close() {
	if a.probe != nil {
		a.probe.Stop()
	}
	if err := a.engine.Close(); err != nil {
		slog.Debug("close engine", "err", err)
	}
}

// online probes the server once. Always false with --offline.
func (a *app) online(ctx context.Context) bool {
	if a.probe == nil {
		return false
	}
	return a.probe.Check(ctx)
}

func (a *app) requireUser() error {
	if a.engine.UserID() == "" {
		return errNotLoggedIn
	}
	return nil
}

// AutoSyncEnabled returns true unless SPLITSYNC_AUTO_SYNC turns it off.
func AutoSyncEnabled() bool {
	if v := os.Getenv("SPLITSYNC_AUTO_SYNC"); v != "" {
		on, err := strconv.ParseBool(v)
		return err != nil || on
	}
	return true
}

// autoSyncAfterMutation runs one sync after a mutating command when the
// server answers. Errors are logged, not returned; the change stays queued.
func (a *app) autoSyncAfterMutation(ctx context.Context) {
	if !AutoSyncEnabled() || a.engine.OfflineOnly() || a.engine.UserID() == "" {
		return
	}
	if !a.online(ctx) {
		slog.Debug("autosync: server unreachable, change queued")
		return
	}
	if _, err := a.engine.Sync(ctx); err != nil {
		slog.Debug("autosync: sync", "err", err)
	}
}

// lookupSplit reads a split by id. A miss names the closest known ids and
// names so typos are easy to fix.
func (a *app) lookupSplit(ctx context.Context, id string) (*models.Envelope, error) {
	env, err := a.engine.Split(ctx, id)
	if err == nil || !errors.Is(err, db.ErrNotFound) {
		return env, err
	}
	all, lerr := a.engine.Splits(ctx)
	if lerr != nil {
		return nil, err
	}
	byName := make(map[string]string, len(all))
	candidates := make([]string, 0, 2*len(all))
	for _, s := range all {
		candidates = append(candidates, s.SplitID, s.Name)
		byName[s.Name] = s.SplitID
	}
	var hints []string
	for _, c := range suggest.Closest(id, candidates, 3) {
		if sid, ok := byName[c]; ok && sid != c {
			c = fmt.Sprintf("%s (%s)", sid, c)
		}
		hints = append(hints, c)
	}
	if len(hints) == 0 {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return nil, fmt.Errorf("%s: %w (did you mean %s?)", id, err, strings.Join(hints, ", "))
}

// openAppOrFail opens the app, printing the error the way commands do.
func openAppOrFail(ctx context.Context, opts appOptions) (*app, error) {
	a, err := openApp(ctx, opts)
	if err != nil {
		output.Error("%v", err)
		return nil, err
	}
	return a, nil
}
