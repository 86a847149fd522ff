// Package syncengine reconciles the local store with the remote records
// service. At most one sync cycle runs at a time; concurrent callers share
// the in-flight cycle and its result.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/azula9713/yae-their-share/internal/conflict"
	"github.com/azula9713/yae-their-share/internal/connectivity"
	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/syncstatus"
)

// Defaults for Config fields left zero.
const (
	DefaultSyncInterval  = 5 * time.Second
	DefaultMaxRetries    = 3
	DefaultBatchSize     = 10
	DefaultRetentionDays = 7
)

var (
	// ErrOffline is returned by Sync when the connectivity oracle reports
	// offline. Nothing was attempted.
	ErrOffline = errors.New("offline")
	// ErrOfflineOnly is returned by Sync when the engine runs without
	// persistent storage.
	ErrOfflineOnly = errors.New("offline-only mode: local storage unavailable")
	// ErrNoUser is returned by mutations when no user is signed in.
	ErrNoUser = errors.New("no user signed in")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sync engine closed")
	// ErrExists is returned when creating a split whose id is taken.
	ErrExists = errors.New("split already exists")
	// ErrNoConflict is returned when resolving a split without a conflict.
	ErrNoConflict = errors.New("split has no conflict")
)

// Remote is the authoritative records service.
type Remote interface {
	CreateRecord(ctx context.Context, s models.Split) (*models.Split, error)
	UpdateRecord(ctx context.Context, s models.Split) error
	DeleteRecord(ctx context.Context, splitID string) error
	RecordsByOwner(ctx context.Context, ownerID string) ([]models.Split, error)
}

// Config configures an Engine. Zero values select the defaults.
type Config struct {
	SyncInterval  time.Duration
	MaxRetries    int
	BatchSize     int
	Policy        conflict.Policy
	RetentionDays int
	HistoryRows   int
	// Registerer receives the engine metrics. Nil disables registration.
	Registerer prometheus.Registerer
}

func (c Config) withDefaults() Config {
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = DefaultRetentionDays
	}
	if c.HistoryRows <= 0 {
		c.HistoryRows = db.DefaultHistoryRows
	}
	return c
}

// Result summarizes one sync cycle.
type Result struct {
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Pushed     int           `json:"pushed"`
	PushFailed int           `json:"pushFailed"`
	Superseded int           `json:"superseded"`
	Pulled     int           `json:"pulled"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Conflicts  int           `json:"conflicts"`
	Requeued   int           `json:"requeued"`
	Cleaned    int           `json:"cleaned"`
	PullSkip   bool          `json:"pullSkipped"`
}

// Engine drives push and pull between the local store and the remote.
type Engine struct {
	cfg      Config
	store    *db.Store
	remote   Remote
	oracle   connectivity.Oracle
	resolver *conflict.Resolver
	status   *syncstatus.Publisher
	metrics  *metrics

	offlineOnly bool

	group singleflight.Group
	// cycleMu serializes cycles against logout purges.
	cycleMu sync.Mutex

	mu          sync.Mutex
	userID      string
	started     bool
	closed      bool
	runCtx      context.Context
	cancelRun   context.CancelFunc
	stopTicker  context.CancelFunc
	unsubOracle func()
	background  sync.WaitGroup
}

// New builds an engine over an open store. The engine does nothing on its
// own until Start.
func New(store *db.Store, remote Remote, oracle connectivity.Oracle, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:      cfg,
		store:    store,
		remote:   remote,
		oracle:   oracle,
		resolver: conflict.New(cfg.Policy),
		status:   syncstatus.NewPublisher(),
		metrics:  newMetrics(cfg.Registerer),
	}
	if uid, err := store.Metadata(context.Background(), db.KeyUserID); err == nil {
		e.userID = uid
	}
	e.refreshStatus(context.Background())
	return e
}

// Open opens the store at path and builds an engine over it. When the store
// cannot be opened the engine degrades to an in-memory, offline-only mode and
// reports the failure once through its status instead of returning it.
func Open(path string, remote Remote, oracle connectivity.Oracle, cfg Config) (*Engine, error) {
	store, err := db.Open(path)
	if err == nil {
		return New(store, remote, oracle, cfg), nil
	}
	slog.Error("syncengine: open store, continuing offline-only", "path", path, "err", err)

	mem, memErr := db.OpenMemory()
	if memErr != nil {
		return nil, fmt.Errorf("open store: %w", errors.Join(err, memErr))
	}
	e := New(mem, remote, oracle, cfg)
	e.offlineOnly = true
	e.status.Update(func(s *syncstatus.Status) {
		s.State = syncstatus.StateError
		s.Error = fmt.Sprintf("local storage unavailable, changes will not persist: %v", err)
	})
	return e, nil
}

// Store returns the underlying store.
func (e *Engine) Store() *db.Store {
	return e.store
}

// OfflineOnly reports whether the engine runs without persistent storage.
func (e *Engine) OfflineOnly() bool {
	return e.offlineOnly
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Status returns the current status snapshot.
func (e *Engine) Status() syncstatus.Status {
	return e.status.Current()
}

// Subscribe registers fn for status changes. See syncstatus.Publisher.
func (e *Engine) Subscribe(fn func(syncstatus.Status)) func() {
	return e.status.Subscribe(fn)
}

// UserID returns the signed-in user, or "".
func (e *Engine) UserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

// Start wires the connectivity listener and, when a user is signed in,
// the periodic timer. ctx bounds background work.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.runCtx, e.cancelRun = context.WithCancel(ctx)
	e.unsubOracle = e.oracle.OnConnectivityChange(e.onConnectivityChange)
	if e.userID != "" {
		e.startTickerLocked()
	}
	e.mu.Unlock()

	e.refreshStatus(ctx)
	return nil
}

// Stop halts the timer and the connectivity listener and waits for
// background syncs, including a tick already in progress, to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.stopTickerLocked()
	if e.unsubOracle != nil {
		e.unsubOracle()
		e.unsubOracle = nil
	}
	cancel := e.cancelRun
	e.mu.Unlock()

	e.background.Wait()
	if cancel != nil {
		cancel()
	}
}

// Close stops the engine and closes the store.
func (e *Engine) Close() error {
	e.Stop()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	return e.store.Close()
}

// SetUserID changes the signed-in user. Clearing it stops the timer and
// purges every split and queued operation of the previous user.
func (e *Engine) SetUserID(ctx context.Context, userID string) error {
	e.mu.Lock()
	prev := e.userID
	e.userID = userID
	if userID == "" {
		e.stopTickerLocked()
	} else if e.started {
		e.startTickerLocked()
	}
	e.mu.Unlock()

	if userID == "" && prev != "" {
		// Wait out any cycle still working for prev.
		e.cycleMu.Lock()
		splits, ops, err := e.store.PurgeOwner(ctx, prev)
		e.cycleMu.Unlock()
		if err != nil {
			return fmt.Errorf("purge user data: %w", err)
		}
		slog.Info("syncengine: purged user data", "user", prev, "splits", splits, "operations", ops)
	}
	if err := e.store.SetMetadata(ctx, db.KeyUserID, userID); err != nil {
		return err
	}
	e.refreshStatus(ctx)
	return nil
}

// Sync runs a sync cycle, or waits for the one already in flight and
// returns its result. A started cycle is never cancelled; ctx only carries
// values to it.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	v, err, shared := e.group.Do("sync", func() (any, error) {
		return e.runCycle(context.WithoutCancel(ctx))
	})
	if shared {
		e.metrics.coalesced.Inc()
	}
	res, _ := v.(*Result)
	return res, err
}

// ForceSync is an explicit user request to sync now.
func (e *Engine) ForceSync(ctx context.Context) (*Result, error) {
	slog.Debug("syncengine: force sync")
	return e.Sync(ctx)
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// trigger starts a background sync if the engine is running and online.
func (e *Engine) trigger(reason string) {
	e.mu.Lock()
	if !e.started || e.offlineOnly || !e.oracle.IsOnline() {
		e.mu.Unlock()
		return
	}
	ctx := e.runCtx
	e.background.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.background.Done()
		if _, err := e.Sync(ctx); err != nil && !errors.Is(err, ErrOffline) {
			slog.Debug("syncengine: background sync", "reason", reason, "err", err)
		}
	}()
}

func (e *Engine) onConnectivityChange(online bool) {
	e.status.Update(func(s *syncstatus.Status) { s.IsOnline = online })
	if online {
		e.trigger("online")
	}
}

func (e *Engine) startTickerLocked() {
	if e.stopTicker != nil || e.runCtx == nil {
		return
	}
	ctx, cancel := context.WithCancel(e.runCtx)
	e.stopTicker = cancel

	e.background.Add(1)
	go func() {
		defer e.background.Done()
		ticker := time.NewTicker(e.cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil || !e.oracle.IsOnline() || e.offlineOnly {
					continue
				}
				if _, err := e.Sync(ctx); err != nil {
					slog.Debug("syncengine: periodic sync", "err", err)
				}
			}
		}
	}()
}

// stopTickerLocked cancels the timer. A tick already running a cycle
// completes on its own; Stop waits for it.
func (e *Engine) stopTickerLocked() {
	if e.stopTicker == nil {
		return
	}
	e.stopTicker()
	e.stopTicker = nil
}

// TickerRunning reports whether the periodic timer is active.
func (e *Engine) TickerRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopTicker != nil
}

// refreshStatus republishes counts read from the store.
func (e *Engine) refreshStatus(ctx context.Context) {
	pending, stuck, err := e.store.CountPending(ctx, e.cfg.MaxRetries)
	if err != nil {
		slog.Warn("syncengine: count pending", "err", err)
		return
	}
	last, err := e.store.LastSyncTime(ctx)
	if err != nil {
		slog.Warn("syncengine: read last sync time", "err", err)
	}
	e.metrics.pending.Set(float64(pending))
	e.metrics.stuck.Set(float64(stuck))
	online := e.oracle.IsOnline()
	e.status.Update(func(s *syncstatus.Status) {
		s.IsOnline = online
		s.PendingOperations = pending
		s.StuckOperations = stuck
		if last != nil {
			s.LastSyncTime = last
		}
		if !s.IsSyncing {
			applyStuck(s, stuck)
		}
	})
}

const stuckSuffix = " operation(s) need attention: retries exhausted or not authorized"

// applyStuck keeps the persistent stuck-queue error in step with the count
// without hiding any other error.
func applyStuck(s *syncstatus.Status, stuck int) {
	isStuckMsg := strings.HasSuffix(s.Error, stuckSuffix)
	switch {
	case stuck > 0 && (s.Error == "" || isStuckMsg):
		s.State = syncstatus.StateError
		s.Error = strconv.Itoa(stuck) + stuckSuffix
	case stuck == 0 && isStuckMsg:
		s.State = syncstatus.StateIdle
		s.Error = ""
	}
}
