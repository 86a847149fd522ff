package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/azula9713/yae-their-share/internal/models"
)

const splitColumns = `split_id, owner_id, name, date, participants, expenses, is_private, updated_by,
	created_at, updated_at, is_deleted, deleted_at, pending_sync, locally_modified, last_synced_at,
	sync_version, conflict_data`

// Put inserts or replaces a split envelope. The caller owns the sync flags;
// Put stores them exactly as given.
func (s *Store) Put(ctx context.Context, env *models.Envelope) error {
	return s.Mutate(ctx, func(tx *Tx) error {
		return tx.Put(env)
	})
}

// Get returns the split with the given id. Absent and logically deleted
// splits both yield ErrNotFound.
func (s *Store) Get(ctx context.Context, splitID string) (*models.Envelope, error) {
	var env *models.Envelope
	err := s.view(ctx, func(tx *Tx) error {
		var err error
		env, err = tx.Get(splitID)
		return err
	})
	return env, err
}

// GetIncludingDeleted returns the split regardless of its deleted flag.
func (s *Store) GetIncludingDeleted(ctx context.Context, splitID string) (*models.Envelope, error) {
	var env *models.Envelope
	err := s.view(ctx, func(tx *Tx) error {
		var err error
		env, err = tx.GetIncludingDeleted(splitID)
		return err
	})
	return env, err
}

// ListByOwner returns the owner's non-deleted splits, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]models.Envelope, error) {
	return s.listWhere(ctx, "owner_id = ? AND is_deleted = 0 ORDER BY created_at DESC, id DESC", ownerID)
}

// ListDeleted returns the owner's logically deleted splits.
func (s *Store) ListDeleted(ctx context.Context, ownerID string) ([]models.Envelope, error) {
	return s.listWhere(ctx, "owner_id = ? AND is_deleted = 1 ORDER BY deleted_at DESC, id DESC", ownerID)
}

// ListConflicts returns the owner's splits holding an unresolved remote snapshot.
func (s *Store) ListConflicts(ctx context.Context, ownerID string) ([]models.Envelope, error) {
	return s.listWhere(ctx, "owner_id = ? AND conflict_data IS NOT NULL ORDER BY updated_at DESC, id DESC", ownerID)
}

// SoftDelete marks a split deleted and pending in one write. Rows are never
// removed here.
func (s *Store) SoftDelete(ctx context.Context, splitID string) (*models.Envelope, error) {
	var env *models.Envelope
	err := s.Mutate(ctx, func(tx *Tx) error {
		var err error
		env, err = tx.SoftDelete(splitID)
		return err
	})
	return env, err
}

// Update merges patch into the stored split and stamps the pending flags in
// the same transaction.
func (s *Store) Update(ctx context.Context, splitID string, patch models.SplitPatch) (*models.Envelope, error) {
	var env *models.Envelope
	err := s.Mutate(ctx, func(tx *Tx) error {
		var err error
		env, err = tx.Update(splitID, patch)
		return err
	})
	return env, err
}

func (s *Store) listWhere(ctx context.Context, where string, args ...any) ([]models.Envelope, error) {
	var out []models.Envelope
	err := s.view(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.listWhere(where, args...)
		return err
	})
	return out, err
}

// Put inserts or replaces env within the transaction. The local row id of an
// existing split is preserved.
func (t *Tx) Put(env *models.Envelope) error {
	participants, err := json.Marshal(nonNilParticipants(env.Participants))
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	expenses, err := json.Marshal(nonNilExpenses(env.Expenses))
	if err != nil {
		return fmt.Errorf("encode expenses: %w", err)
	}
	var conflict sql.NullString
	if env.ConflictData != nil {
		data, err := json.Marshal(env.ConflictData.UTC())
		if err != nil {
			return fmt.Errorf("encode conflict data: %w", err)
		}
		conflict = sql.NullString{String: string(data), Valid: true}
	}

	_, err = t.tx.Exec(`INSERT INTO splits (`+splitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(split_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			date = excluded.date,
			participants = excluded.participants,
			expenses = excluded.expenses,
			is_private = excluded.is_private,
			updated_by = excluded.updated_by,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			is_deleted = excluded.is_deleted,
			deleted_at = excluded.deleted_at,
			pending_sync = excluded.pending_sync,
			locally_modified = excluded.locally_modified,
			last_synced_at = excluded.last_synced_at,
			sync_version = excluded.sync_version,
			conflict_data = excluded.conflict_data`,
		env.SplitID, env.CreatedBy, env.Name, formatTimePtr(env.Date), string(participants), string(expenses),
		boolInt(env.IsPrivate), env.UpdatedBy, formatTime(env.CreatedAt), formatTime(env.UpdatedAt),
		boolInt(env.IsDeleted), formatTimePtr(env.DeletedAt), boolInt(env.PendingSync),
		boolInt(env.LocallyModified), formatTimePtr(env.LastSyncedAt), env.SyncVersion, conflict,
	)
	if err != nil {
		return storageErr("put split "+env.SplitID, err)
	}
	return nil
}

// Get returns a non-deleted split.
func (t *Tx) Get(splitID string) (*models.Envelope, error) {
	env, err := t.GetIncludingDeleted(splitID)
	if err != nil {
		return nil, err
	}
	if env.IsDeleted {
		return nil, fmt.Errorf("get split %s: %w", splitID, ErrNotFound)
	}
	return env, nil
}

// GetIncludingDeleted returns the split regardless of its deleted flag.
func (t *Tx) GetIncludingDeleted(splitID string) (*models.Envelope, error) {
	row := t.tx.QueryRow(`SELECT `+splitColumns+` FROM splits WHERE split_id = ?`, splitID)
	env, err := scanEnvelope(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get split %s: %w", splitID, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get split "+splitID, err)
	}
	return env, nil
}

// Update merges patch and stamps PendingSync, LocallyModified and
// LastSyncedAt with the transaction time.
func (t *Tx) Update(splitID string, patch models.SplitPatch) (*models.Envelope, error) {
	env, err := t.Get(splitID)
	if err != nil {
		return nil, err
	}
	patch.Apply(&env.Split)
	now := t.now
	env.UpdatedAt = now
	env.PendingSync = true
	env.LocallyModified = true
	env.LastSyncedAt = &now
	env.SyncVersion++
	if err := t.Put(env); err != nil {
		return nil, err
	}
	return env, nil
}

// SoftDelete sets IsDeleted, DeletedAt and the pending flags.
func (t *Tx) SoftDelete(splitID string) (*models.Envelope, error) {
	env, err := t.Get(splitID)
	if err != nil {
		return nil, err
	}
	now := t.now
	env.IsDeleted = true
	env.DeletedAt = &now
	env.UpdatedAt = now
	env.PendingSync = true
	env.LocallyModified = true
	env.SyncVersion++
	if err := t.Put(env); err != nil {
		return nil, err
	}
	return env, nil
}

// ClearPending clears the pending flags of a split once its queued work has
// been confirmed. Flags stay set while any other incomplete operation for
// the split remains. Reports whether the flags were cleared.
func (t *Tx) ClearPending(splitID string) (bool, error) {
	res, err := t.tx.Exec(`UPDATE splits SET pending_sync = 0, locally_modified = 0, last_synced_at = ?
		WHERE split_id = ? AND NOT EXISTS (
			SELECT 1 FROM sync_operations WHERE entity_id = ? AND completed = 0
		)`, formatTime(t.now), splitID, splitID)
	if err != nil {
		return false, storageErr("clear pending "+splitID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (t *Tx) listWhere(where string, args ...any) ([]models.Envelope, error) {
	rows, err := t.tx.Query(`SELECT `+splitColumns+` FROM splits WHERE `+where, args...)
	if err != nil {
		return nil, storageErr("list splits", err)
	}
	defer rows.Close()

	var out []models.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, storageErr("scan split", err)
		}
		out = append(out, *env)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list splits", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnvelope(row rowScanner) (*models.Envelope, error) {
	var (
		env                                   models.Envelope
		date, deletedAt, lastSynced, conflict sql.NullString
		participants, expenses                string
		createdAt, updatedAt                  string
		isPrivate, isDeleted, pending, local  int
	)
	err := row.Scan(&env.SplitID, &env.CreatedBy, &env.Name, &date, &participants, &expenses, &isPrivate,
		&env.UpdatedBy, &createdAt, &updatedAt, &isDeleted, &deletedAt, &pending, &local, &lastSynced,
		&env.SyncVersion, &conflict)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(participants), &env.Participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	if err := json.Unmarshal([]byte(expenses), &env.Expenses); err != nil {
		return nil, fmt.Errorf("decode expenses: %w", err)
	}
	if conflict.Valid {
		var remote models.Split
		if err := json.Unmarshal([]byte(conflict.String), &remote); err != nil {
			return nil, fmt.Errorf("decode conflict data: %w", err)
		}
		env.ConflictData = &remote
	}

	if env.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if env.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if env.Date, err = parseTimePtr(date); err != nil {
		return nil, err
	}
	if env.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return nil, err
	}
	if env.LastSyncedAt, err = parseTimePtr(lastSynced); err != nil {
		return nil, err
	}

	env.IsPrivate = isPrivate != 0
	env.IsDeleted = isDeleted != 0
	env.PendingSync = pending != 0
	env.LocallyModified = local != 0
	return &env, nil
}

func nonNilParticipants(p []models.Participant) []models.Participant {
	if p == nil {
		return []models.Participant{}
	}
	return p
}

func nonNilExpenses(e []models.Expense) []models.Expense {
	if e == nil {
		return []models.Expense{}
	}
	return e
}
