package db

import (
	"context"
)

// Stats summarizes the local cache and operation log.
type Stats struct {
	Splits          int `json:"splits"`
	Deleted         int `json:"deleted"`
	PendingSync     int `json:"pendingSync"`
	LocallyModified int `json:"locallyModified"`
	Conflicts       int `json:"conflicts"`
	Operations      int `json:"operations"`
	Pending         int `json:"pendingOperations"`
	Stuck           int `json:"stuckOperations"`
	Completed       int `json:"completedOperations"`
}

// Stats returns counters for the whole store. maxRetries decides which
// pending operations count as stuck.
func (s *Store) Stats(ctx context.Context, maxRetries int) (*Stats, error) {
	var st Stats
	err := s.view(ctx, func(tx *Tx) error {
		// Consolidate scalar counts into two queries
		err := tx.tx.QueryRow(`
			SELECT
				COALESCE(SUM(CASE WHEN is_deleted = 0 THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(is_deleted), 0),
				COALESCE(SUM(pending_sync), 0),
				COALESCE(SUM(locally_modified), 0),
				COALESCE(SUM(CASE WHEN conflict_data IS NOT NULL THEN 1 ELSE 0 END), 0)
			FROM splits
		`).Scan(&st.Splits, &st.Deleted, &st.PendingSync, &st.LocallyModified, &st.Conflicts)
		if err != nil {
			return storageErr("split stats", err)
		}
		err = tx.tx.QueryRow(`
			SELECT
				COUNT(*),
				COALESCE(SUM(CASE WHEN completed = 0 THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN completed = 0 AND (retry_count > ? OR failure_kind = 'authorization') THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(completed), 0)
			FROM sync_operations
		`, maxRetries).Scan(&st.Operations, &st.Pending, &st.Stuck, &st.Completed)
		if err != nil {
			return storageErr("operation stats", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}
