package db

import (
	"context"
	"time"
)

// DefaultHistoryRows is how many sync_history rows are retained.
const DefaultHistoryRows = 500

// SyncHistoryEntry is one recorded sync cycle.
type SyncHistoryEntry struct {
	ID         int64         `json:"id"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Pushed     int           `json:"pushed"`
	PushFailed int           `json:"pushFailed"`
	Pulled     int           `json:"pulled"`
	Conflicts  int           `json:"conflicts"`
	Error      string        `json:"error,omitempty"`
}

// RecordSyncHistory appends e and prunes the table down to maxRows.
func (s *Store) RecordSyncHistory(ctx context.Context, e SyncHistoryEntry, maxRows int) error {
	return s.Mutate(ctx, func(tx *Tx) error {
		_, err := tx.tx.Exec(`
			INSERT INTO sync_history (started_at, duration_ms, pushed, push_failed, pulled, conflicts, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, formatTime(e.StartedAt), e.Duration.Milliseconds(), e.Pushed, e.PushFailed, e.Pulled, e.Conflicts, e.Error)
		if err != nil {
			return storageErr("record sync history", err)
		}
		if maxRows <= 0 {
			return nil
		}
		return tx.pruneSyncHistory(maxRows)
	})
}

// SyncHistoryTail returns the last n entries in chronological order (oldest first).
func (s *Store) SyncHistoryTail(ctx context.Context, n int) ([]SyncHistoryEntry, error) {
	var entries []SyncHistoryEntry
	err := s.view(ctx, func(tx *Tx) error {
		rows, err := tx.tx.Query(`
			SELECT id, started_at, duration_ms, pushed, push_failed, pulled, conflicts, error
			FROM sync_history
			ORDER BY id DESC
			LIMIT ?
		`, n)
		if err != nil {
			return storageErr("read sync history", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e SyncHistoryEntry
			var ts string
			var ms int64
			if err := rows.Scan(&e.ID, &ts, &ms, &e.Pushed, &e.PushFailed, &e.Pulled, &e.Conflicts, &e.Error); err != nil {
				return storageErr("scan sync history", err)
			}
			if e.StartedAt, err = parseTime(ts); err != nil {
				return storageErr("scan sync history", err)
			}
			e.Duration = time.Duration(ms) * time.Millisecond
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// pruneSyncHistory deletes rows not in the newest maxRows entries.
func (t *Tx) pruneSyncHistory(maxRows int) error {
	_, err := t.tx.Exec(`
		DELETE FROM sync_history WHERE id NOT IN (
			SELECT id FROM sync_history ORDER BY id DESC LIMIT ?
		)
	`, maxRows)
	if err != nil {
		return storageErr("prune sync history", err)
	}
	return nil
}
