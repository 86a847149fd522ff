package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/syncstatus"
)

// runCycle executes push, pull and the bookkeeping that follows. It is only
// ever entered through the single-flight group.
func (e *Engine) runCycle(ctx context.Context) (*Result, error) {
	if e.offlineOnly {
		return nil, ErrOfflineOnly
	}
	if !e.oracle.IsOnline() {
		e.status.Update(func(s *syncstatus.Status) { s.IsOnline = false })
		return nil, ErrOffline
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	res := &Result{StartedAt: time.Now()}
	e.status.Update(func(s *syncstatus.Status) {
		s.State = syncstatus.StateSyncing
		s.IsSyncing = true
		s.IsOnline = true
		s.Error = ""
	})
	slog.Debug("syncengine: cycle start")

	cycleErr := e.push(ctx, res)
	if cycleErr == nil {
		if userID := e.UserID(); userID != "" {
			cycleErr = e.pull(ctx, userID, res)
		} else {
			res.PullSkip = true
		}
	}
	if cycleErr == nil {
		cycleErr = e.store.Mutate(ctx, func(tx *db.Tx) error {
			return tx.StampLastSyncTime()
		})
	}
	if cycleErr == nil {
		n, err := e.store.Cleanup(ctx, e.cfg.RetentionDays)
		if err != nil {
			slog.Warn("syncengine: cleanup", "err", err)
		}
		res.Cleaned = n
	}
	res.Duration = time.Since(res.StartedAt)

	e.finishCycle(ctx, res, cycleErr)
	return res, cycleErr
}

// finishCycle records history and metrics and publishes the final status.
func (e *Engine) finishCycle(ctx context.Context, res *Result, cycleErr error) {
	entry := db.SyncHistoryEntry{
		StartedAt:  res.StartedAt,
		Duration:   res.Duration,
		Pushed:     res.Pushed,
		PushFailed: res.PushFailed,
		Pulled:     res.Pulled,
		Conflicts:  res.Conflicts,
	}
	if cycleErr != nil {
		entry.Error = cycleErr.Error()
	}
	if err := e.store.RecordSyncHistory(ctx, entry, e.cfg.HistoryRows); err != nil {
		slog.Warn("syncengine: record history", "err", err)
	}

	outcome := "ok"
	if cycleErr != nil {
		outcome = "error"
	}
	e.metrics.cycles.WithLabelValues(outcome).Inc()
	e.metrics.cycleDuration.Observe(res.Duration.Seconds())

	pending, stuck, err := e.store.CountPending(ctx, e.cfg.MaxRetries)
	if err != nil {
		slog.Warn("syncengine: count pending", "err", err)
	}
	last, err := e.store.LastSyncTime(ctx)
	if err != nil {
		slog.Warn("syncengine: read last sync time", "err", err)
	}
	e.metrics.pending.Set(float64(pending))
	e.metrics.stuck.Set(float64(stuck))

	msg := ""
	switch {
	case cycleErr != nil:
		msg = cycleErr.Error()
	case res.PushFailed > 0:
		msg = fmt.Sprintf("%d operation(s) failed to push, will retry", res.PushFailed)
	}
	e.status.Update(func(s *syncstatus.Status) {
		s.IsSyncing = false
		s.PendingOperations = pending
		s.StuckOperations = stuck
		if last != nil {
			s.LastSyncTime = last
		}
		s.Error = msg
		s.State = syncstatus.StateIdle
		if msg != "" {
			s.State = syncstatus.StateError
		}
		applyStuck(s, stuck)
	})

	if cycleErr != nil {
		slog.Warn("syncengine: cycle failed", "err", cycleErr, "pushed", res.Pushed, "pulled", res.Pulled)
		return
	}
	slog.Debug("syncengine: cycle done", "pushed", res.Pushed, "failed", res.PushFailed,
		"pulled", res.Pulled, "conflicts", res.Conflicts, "took", res.Duration)
}
