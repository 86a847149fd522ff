package db

import (
	"context"

	"github.com/azula9713/yae-their-share/internal/models"
)

// PurgeOwner physically removes every split and operation log entry that
// belongs to ownerID. Used on logout so the next user of the device never
// sees the previous user's data.
func (s *Store) PurgeOwner(ctx context.Context, ownerID string) (splits, ops int, err error) {
	err = s.Mutate(ctx, func(tx *Tx) error {
		res, err := tx.tx.Exec(`DELETE FROM sync_operations WHERE owner_id = ?
			OR entity_id IN (SELECT split_id FROM splits WHERE owner_id = ?)`, ownerID, ownerID)
		if err != nil {
			return storageErr("purge operations", err)
		}
		n, _ := res.RowsAffected()
		ops = int(n)

		res, err = tx.tx.Exec(`DELETE FROM splits WHERE owner_id = ?`, ownerID)
		if err != nil {
			return storageErr("purge splits", err)
		}
		n, _ = res.RowsAffected()
		splits = int(n)
		return nil
	})
	return splits, ops, err
}

// ClearAll removes every split, operation and metadata value.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.Mutate(ctx, func(tx *Tx) error {
		for _, table := range []string{"splits", "sync_operations", "sync_metadata"} {
			if _, err := tx.tx.Exec(`DELETE FROM ` + table); err != nil {
				return storageErr("clear "+table, err)
			}
		}
		return nil
	})
}

// ResetPendingFlags clears the pending flags of every split that has no
// incomplete operation left. Returns the number of splits changed.
func (s *Store) ResetPendingFlags(ctx context.Context) (int, error) {
	var n int64
	err := s.Mutate(ctx, func(tx *Tx) error {
		res, err := tx.tx.Exec(`UPDATE splits SET pending_sync = 0, locally_modified = 0
			WHERE (pending_sync = 1 OR locally_modified = 1)
			AND NOT EXISTS (SELECT 1 FROM sync_operations o WHERE o.entity_id = splits.split_id AND o.completed = 0)`)
		if err != nil {
			return storageErr("reset pending flags", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}

// ResolveAllWithRemote takes the remote snapshot for every split of ownerID
// holding one, clearing its flags and conflict data.
func (s *Store) ResolveAllWithRemote(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.Mutate(ctx, func(tx *Tx) error {
		conflicts, err := tx.listWhere("owner_id = ? AND conflict_data IS NOT NULL", ownerID)
		if err != nil {
			return err
		}
		for i := range conflicts {
			if err := tx.AcceptRemote(&conflicts[i]); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// AcceptRemote replaces env's content with its conflict snapshot, completes
// any queued work for the split and clears the flags.
func (t *Tx) AcceptRemote(env *models.Envelope) error {
	if env.ConflictData == nil {
		return nil
	}
	now := t.now
	remote := env.ConflictData.Clone()
	env.Split = remote
	env.ConflictData = nil
	env.PendingSync = false
	env.LocallyModified = false
	env.LastSyncedAt = &now
	env.SyncVersion++
	if _, err := t.DiscardPending(env.SplitID); err != nil {
		return err
	}
	return t.Put(env)
}
