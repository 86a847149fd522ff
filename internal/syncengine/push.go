package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/syncclient"
)

// push delivers one batch of queued operations in enqueue order, one at a
// time, so that operations on the same split reach the remote in the order
// they were made. An entry completed since the batch was read (superseded
// or discarded) is skipped. A failed operation is recorded and the batch
// continues. Only a storage failure aborts the phase.
func (e *Engine) push(ctx context.Context, res *Result) error {
	batch, err := e.store.NextBatch(ctx, e.cfg.MaxRetries, e.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("push: load pending operations: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}
	slog.Debug("syncengine: push", "operations", len(batch))

	for _, entry := range batch {
		done, err := e.store.OperationCompleted(ctx, entry.ID)
		if err != nil {
			return fmt.Errorf("push: check operation %d: %w", entry.ID, err)
		}
		if done {
			slog.Debug("syncengine: push skipped completed operation", "id", entry.ID, "split", entry.EntityID())
			continue
		}

		kind := string(entry.Op.Kind())
		sendErr := e.dispatch(ctx, entry.Op)
		if sendErr != nil {
			res.PushFailed++
			e.metrics.operations.WithLabelValues(kind, "failed").Inc()
			failure := models.FailureTransport
			if syncclient.IsAuthError(sendErr) {
				failure = models.FailureAuthorization
			}
			slog.Warn("syncengine: push operation", "id", entry.ID, "op", kind, "split", entry.EntityID(),
				"retry", entry.RetryCount+1, "kind", failure, "err", sendErr)
			if err := e.store.RecordFailure(ctx, entry.ID, failure, sendErr.Error()); err != nil {
				return fmt.Errorf("push: record failure for operation %d: %w", entry.ID, err)
			}
			continue
		}

		var superseded int
		err = e.store.Mutate(ctx, func(tx *db.Tx) error {
			if err := tx.MarkCompleted(entry.ID); err != nil {
				return err
			}
			var err error
			if superseded, err = tx.SupersedeBefore(entry.EntityID(), entry.ID); err != nil {
				return err
			}
			_, err = tx.ClearPending(entry.EntityID())
			return err
		})
		if err != nil {
			return fmt.Errorf("push: complete operation %d: %w", entry.ID, err)
		}
		res.Pushed++
		res.Superseded += superseded
		e.metrics.operations.WithLabelValues(kind, "ok").Inc()
	}
	return nil
}

// dispatch sends one operation. Answers that show the remote already holds
// the intended state count as success: a create for an existing record, an
// update for a missing record (sent as a create) and a delete for a missing
// record.
func (e *Engine) dispatch(ctx context.Context, op models.Operation) error {
	switch o := op.(type) {
	case models.CreateOp:
		_, err := e.remote.CreateRecord(ctx, o.Split)
		if errors.Is(err, syncclient.ErrConflict) {
			slog.Debug("syncengine: create already applied", "split", o.Split.SplitID)
			return nil
		}
		return err
	case models.UpdateOp:
		err := e.remote.UpdateRecord(ctx, o.Split)
		if errors.Is(err, syncclient.ErrNotFound) {
			_, err = e.remote.CreateRecord(ctx, o.Split)
		}
		return err
	case models.DeleteOp:
		err := e.remote.DeleteRecord(ctx, o.SplitID)
		if errors.Is(err, syncclient.ErrNotFound) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("dispatch %T: %w", op, models.ErrUnknownOpKind)
	}
}
