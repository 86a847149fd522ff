package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/azula9713/yae-their-share/internal/conflict"
	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/models"
)

// pull fetches every record of userID and merges each into the store in its
// own transaction. The first failure aborts the remaining merges; merges
// already applied stay committed.
func (e *Engine) pull(ctx context.Context, userID string, res *Result) error {
	records, err := e.remote.RecordsByOwner(ctx, userID)
	if err != nil {
		return fmt.Errorf("pull: fetch records: %w", err)
	}
	res.Pulled = len(records)
	slog.Debug("syncengine: pull", "records", len(records))

	for _, remote := range records {
		if remote.SplitID == "" {
			slog.Warn("syncengine: pull skipped record without id")
			continue
		}
		d, err := e.merge(ctx, remote)
		if err != nil {
			return fmt.Errorf("pull: merge %s: %w", remote.SplitID, err)
		}
		e.metrics.merges.WithLabelValues(d.Action.String()).Inc()
		switch d.Action {
		case conflict.Insert:
			res.Inserted++
		case conflict.Overwrite, conflict.TakeRemote:
			res.Updated++
		}
		if d.Conflict {
			res.Conflicts++
		}
		if d.Requeue {
			res.Requeued++
		}
	}
	return nil
}

// merge applies the resolver decision for one remote record atomically with
// any queue changes it implies.
func (e *Engine) merge(ctx context.Context, remote models.Split) (conflict.Decision, error) {
	var d conflict.Decision
	err := e.store.Mutate(ctx, func(tx *db.Tx) error {
		local, err := tx.GetIncludingDeleted(remote.SplitID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
		d = e.resolver.Merge(local, remote, tx.Now())

		switch d.Action {
		case conflict.TakeRemote:
			// Local changes lose; their queued writes must not be replayed.
			if _, err := tx.DiscardPending(remote.SplitID); err != nil {
				return err
			}
			slog.Info("syncengine: conflict resolved with remote version", "split", remote.SplitID)
		case conflict.KeepLocal:
			slog.Info("syncengine: conflict resolved with local version", "split", remote.SplitID)
		case conflict.Defer:
			slog.Info("syncengine: conflict awaiting manual resolution", "split", remote.SplitID)
		}

		if err := tx.Put(&d.Result); err != nil {
			return err
		}
		if d.Requeue {
			// A write still queued for the split already carries the local
			// state forward; adding another would grow the log every cycle.
			queued, err := tx.HasIncomplete(remote.SplitID)
			if err != nil {
				return err
			}
			if queued {
				d.Requeue = false
			} else if _, err := tx.Enqueue(requeueOp(d.Result), d.Result.OwnerID()); err != nil {
				return err
			}
		}
		return nil
	})
	return d, err
}

// requeueOp is the operation that pushes env's current state again.
func requeueOp(env models.Envelope) models.Operation {
	if env.IsDeleted {
		return models.DeleteOp{SplitID: env.SplitID}
	}
	return models.UpdateOp{Split: env.Split.Clone()}
}
