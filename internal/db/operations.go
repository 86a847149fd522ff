package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/azula9713/yae-their-share/internal/models"
)

const operationColumns = `id, op_type, owner_id, payload, timestamp, retry_count, last_error, failure_kind, completed, completed_at`

// Enqueue appends op to the operation log and returns the new entry id.
func (s *Store) Enqueue(ctx context.Context, op models.Operation, ownerID string) (int64, error) {
	var id int64
	err := s.Mutate(ctx, func(tx *Tx) error {
		var err error
		id, err = tx.Enqueue(op, ownerID)
		return err
	})
	return id, err
}

// PendingOperations returns every incomplete entry in enqueue order.
func (s *Store) PendingOperations(ctx context.Context) ([]models.OperationEntry, error) {
	return s.operationsWhere(ctx, "completed = 0 ORDER BY id ASC")
}

// NextBatch returns up to limit incomplete entries that are eligible for
// automatic delivery, in enqueue order. The autoincrement id is the order;
// wall-clock timestamps can step backwards. Parked entries are skipped, and
// so are entries of splits holding an unresolved conflict: those wait for
// an explicit resolution.
func (s *Store) NextBatch(ctx context.Context, maxRetries, limit int) ([]models.OperationEntry, error) {
	return s.operationsWhere(ctx, `completed = 0 AND retry_count <= ? AND failure_kind != ?
		AND entity_id NOT IN (SELECT split_id FROM splits WHERE conflict_data IS NOT NULL)
		ORDER BY id ASC LIMIT ?`, maxRetries, string(models.FailureAuthorization), limit)
}

// OperationCompleted reports whether entry id has been completed, for
// instance superseded by a later write delivered in the same cycle.
func (s *Store) OperationCompleted(ctx context.Context, id int64) (bool, error) {
	var done bool
	err := s.view(ctx, func(tx *Tx) error {
		entry, err := tx.Operation(id)
		if errors.Is(err, sql.ErrNoRows) {
			done = true
			return nil
		}
		if err != nil {
			return err
		}
		done = entry.Completed
		return nil
	})
	return done, err
}

// Stuck returns the parked entries: those whose retry count exceeds
// maxRetries or whose last failure was an authorization failure.
func (s *Store) Stuck(ctx context.Context, maxRetries int) ([]models.OperationEntry, error) {
	return s.operationsWhere(ctx, `completed = 0 AND (retry_count > ? OR failure_kind = ?)
		ORDER BY id ASC`, maxRetries, string(models.FailureAuthorization))
}

// CountPending returns the number of incomplete entries and how many of them
// are parked.
func (s *Store) CountPending(ctx context.Context, maxRetries int) (pending, stuck int, err error) {
	err = s.view(ctx, func(tx *Tx) error {
		return tx.tx.QueryRow(`SELECT
				COUNT(*),
				COALESCE(SUM(CASE WHEN retry_count > ? OR failure_kind = ? THEN 1 ELSE 0 END), 0)
			FROM sync_operations WHERE completed = 0`,
			maxRetries, string(models.FailureAuthorization)).Scan(&pending, &stuck)
	})
	if err != nil {
		return 0, 0, storageErr("count pending operations", err)
	}
	return pending, stuck, nil
}

// MarkCompleted marks an entry completed. Completing an entry twice is a no-op.
func (s *Store) MarkCompleted(ctx context.Context, id int64) error {
	return s.Mutate(ctx, func(tx *Tx) error {
		return tx.MarkCompleted(id)
	})
}

// RecordFailure increments the retry count and stores the failure. The
// entry stays incomplete.
func (s *Store) RecordFailure(ctx context.Context, id int64, kind models.FailureKind, msg string) error {
	return s.Mutate(ctx, func(tx *Tx) error {
		return tx.RecordFailure(id, kind, msg)
	})
}

// Cleanup physically deletes completed entries older than maxAgeDays and
// returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, maxAgeDays int) (int, error) {
	var n int64
	err := s.Mutate(ctx, func(tx *Tx) error {
		cutoff := tx.now.Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
		res, err := tx.tx.Exec(`DELETE FROM sync_operations WHERE completed = 1 AND timestamp < ?`, formatTime(cutoff))
		if err != nil {
			return storageErr("cleanup operations", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}

// ResetRetries re-arms parked entries by clearing their retry count and
// failure. Returns the number of entries reset.
func (s *Store) ResetRetries(ctx context.Context) (int, error) {
	var n int64
	err := s.Mutate(ctx, func(tx *Tx) error {
		res, err := tx.tx.Exec(`UPDATE sync_operations SET retry_count = 0, last_error = '', failure_kind = ''
			WHERE completed = 0 AND (retry_count > 0 OR failure_kind != '')`)
		if err != nil {
			return storageErr("reset retries", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}

func (s *Store) operationsWhere(ctx context.Context, where string, args ...any) ([]models.OperationEntry, error) {
	var out []models.OperationEntry
	err := s.view(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.operationsWhere(where, args...)
		return err
	})
	return out, err
}

// Enqueue appends op with the transaction timestamp, zero retries and
// completed=false.
func (t *Tx) Enqueue(op models.Operation, ownerID string) (int64, error) {
	kind, payload, err := models.EncodeOperation(op)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.Exec(`INSERT INTO sync_operations (op_type, entity_id, owner_id, payload, timestamp)
		VALUES (?, ?, ?, ?, ?)`, string(kind), op.EntityID(), ownerID, string(payload), formatTime(t.now))
	if err != nil {
		return 0, storageErr("enqueue "+string(kind), err)
	}
	return res.LastInsertId()
}

// MarkCompleted sets completed=true, keeping the first completion time.
func (t *Tx) MarkCompleted(id int64) error {
	_, err := t.tx.Exec(`UPDATE sync_operations SET completed = 1, completed_at = COALESCE(completed_at, ?)
		WHERE id = ?`, formatTime(t.now), id)
	if err != nil {
		return storageErr(fmt.Sprintf("mark operation %d completed", id), err)
	}
	return nil
}

// RecordFailure increments retry_count and attaches the failure.
func (t *Tx) RecordFailure(id int64, kind models.FailureKind, msg string) error {
	_, err := t.tx.Exec(`UPDATE sync_operations SET retry_count = retry_count + 1, last_error = ?, failure_kind = ?
		WHERE id = ? AND completed = 0`, msg, string(kind), id)
	if err != nil {
		return storageErr(fmt.Sprintf("record failure for operation %d", id), err)
	}
	return nil
}

// SupersedeBefore completes every incomplete entry for entityID older than
// the entry id. Used once a later full-state write for the entity has been
// confirmed, so that earlier writes are never replayed over it.
func (t *Tx) SupersedeBefore(entityID string, id int64) (int, error) {
	return t.completeWhere("superseded", "entity_id = ? AND id < ?", entityID, id)
}

// DiscardPending completes every incomplete entry for entityID without
// delivering it. Used when local changes are dropped in favor of the
// remote version.
func (t *Tx) DiscardPending(entityID string) (int, error) {
	return t.completeWhere("discarded for remote version", "entity_id = ?", entityID)
}

func (t *Tx) completeWhere(reason, where string, args ...any) (int, error) {
	args = append([]any{formatTime(t.now), reason}, args...)
	res, err := t.tx.Exec(`UPDATE sync_operations
		SET completed = 1, completed_at = ?, last_error = CASE WHEN last_error = '' THEN ? ELSE last_error END
		WHERE completed = 0 AND `+where, args...)
	if err != nil {
		return 0, storageErr("complete operations", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// HasIncomplete reports whether the entity still has queued work.
func (t *Tx) HasIncomplete(entityID string) (bool, error) {
	var n int
	err := t.tx.QueryRow(`SELECT COUNT(*) FROM sync_operations WHERE entity_id = ? AND completed = 0`, entityID).Scan(&n)
	if err != nil {
		return false, storageErr("count operations for "+entityID, err)
	}
	return n > 0, nil
}

// Operation returns a single log entry.
func (t *Tx) Operation(id int64) (*models.OperationEntry, error) {
	entries, err := t.operationsWhere("id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("operation %d: %w", id, sql.ErrNoRows)
	}
	return &entries[0], nil
}

func (t *Tx) operationsWhere(where string, args ...any) ([]models.OperationEntry, error) {
	rows, err := t.tx.Query(`SELECT `+operationColumns+` FROM sync_operations WHERE `+where, args...)
	if err != nil {
		return nil, storageErr("query operations", err)
	}
	defer rows.Close()

	var out []models.OperationEntry
	for rows.Next() {
		var (
			e               models.OperationEntry
			kind, payload   string
			ts, failureKind string
			completed       int
			completedAt     sql.NullString
		)
		if err := rows.Scan(&e.ID, &kind, &e.OwnerID, &payload, &ts, &e.RetryCount, &e.LastError,
			&failureKind, &completed, &completedAt); err != nil {
			return nil, storageErr("scan operation", err)
		}
		op, err := models.DecodeOperation(models.OpKind(kind), []byte(payload))
		if err != nil {
			return nil, storageErr(fmt.Sprintf("decode operation %d", e.ID), err)
		}
		e.Op = op
		e.FailureKind = models.FailureKind(failureKind)
		e.Completed = completed != 0
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, storageErr("scan operation", err)
		}
		if e.CompletedAt, err = parseTimePtr(completedAt); err != nil {
			return nil, storageErr("scan operation", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query operations", err)
	}
	return out, nil
}
