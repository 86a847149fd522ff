package syncengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/models"
)

// CreateSplit validates s, stores it as pending and queues its creation in
// one transaction. A missing SplitID is generated; CreatedBy is the signed-in
// user.
func (e *Engine) CreateSplit(ctx context.Context, s models.Split) (*models.Envelope, error) {
	userID := e.UserID()
	if userID == "" {
		return nil, ErrNoUser
	}
	if s.SplitID == "" {
		s.SplitID = uuid.New().String()
	}
	s.CreatedBy = userID
	s.UpdatedBy = userID
	s.IsDeleted = false
	s.DeletedAt = nil
	if err := models.ValidateSplit(&s); err != nil {
		return nil, err
	}

	var env *models.Envelope
	err := e.store.Mutate(ctx, func(tx *db.Tx) error {
		_, err := tx.GetIncludingDeleted(s.SplitID)
		if err == nil {
			return fmt.Errorf("create split %s: %w", s.SplitID, ErrExists)
		}
		if !errors.Is(err, db.ErrNotFound) {
			return err
		}
		now := tx.Now()
		s.CreatedAt = now
		s.UpdatedAt = now
		env = &models.Envelope{
			Split:           s,
			PendingSync:     true,
			LocallyModified: true,
			LastSyncedAt:    &now,
			SyncVersion:     1,
		}
		if err := tx.Put(env); err != nil {
			return err
		}
		_, err = tx.Enqueue(models.CreateOp{Split: env.Split.Clone()}, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.afterMutation(ctx)
	return env, nil
}

// UpdateSplit applies patch, validates the result and queues an update
// carrying the full new state.
func (e *Engine) UpdateSplit(ctx context.Context, splitID string, patch models.SplitPatch) (*models.Envelope, error) {
	userID := e.UserID()
	if userID == "" {
		return nil, ErrNoUser
	}
	patch.UpdatedBy = userID

	var env *models.Envelope
	err := e.store.Mutate(ctx, func(tx *db.Tx) error {
		current, err := tx.Get(splitID)
		if err != nil {
			return err
		}
		candidate := current.Split.Clone()
		patch.Apply(&candidate)
		if err := models.ValidateSplit(&candidate); err != nil {
			return err
		}
		if env, err = tx.Update(splitID, patch); err != nil {
			return err
		}
		_, err = tx.Enqueue(models.UpdateOp{Split: env.Split.Clone()}, env.OwnerID())
		return err
	})
	if err != nil {
		return nil, err
	}
	e.afterMutation(ctx)
	return env, nil
}

// DeleteSplit logically deletes the split and queues the deletion.
func (e *Engine) DeleteSplit(ctx context.Context, splitID string) (*models.Envelope, error) {
	if e.UserID() == "" {
		return nil, ErrNoUser
	}
	var env *models.Envelope
	err := e.store.Mutate(ctx, func(tx *db.Tx) error {
		var err error
		if env, err = tx.SoftDelete(splitID); err != nil {
			return err
		}
		_, err = tx.Enqueue(models.DeleteOp{SplitID: splitID}, env.OwnerID())
		return err
	})
	if err != nil {
		return nil, err
	}
	e.afterMutation(ctx)
	return env, nil
}

// Split returns a non-deleted split.
func (e *Engine) Split(ctx context.Context, splitID string) (*models.Envelope, error) {
	return e.store.Get(ctx, splitID)
}

// Splits returns the signed-in user's splits.
func (e *Engine) Splits(ctx context.Context) ([]models.Envelope, error) {
	userID := e.UserID()
	if userID == "" {
		return nil, ErrNoUser
	}
	return e.store.ListByOwner(ctx, userID)
}

// DeletedSplits returns the signed-in user's logically deleted splits.
func (e *Engine) DeletedSplits(ctx context.Context) ([]models.Envelope, error) {
	userID := e.UserID()
	if userID == "" {
		return nil, ErrNoUser
	}
	return e.store.ListDeleted(ctx, userID)
}

// Conflicts returns the signed-in user's splits awaiting manual resolution.
func (e *Engine) Conflicts(ctx context.Context) ([]models.Envelope, error) {
	userID := e.UserID()
	if userID == "" {
		return nil, ErrNoUser
	}
	return e.store.ListConflicts(ctx, userID)
}

// Choice picks the surviving side of a manual conflict.
type Choice int

const (
	KeepLocal Choice = iota
	KeepRemote
)

// ResolveConflict settles a split held by the manual policy. KeepLocal
// queues the local version to overwrite the remote; KeepRemote replaces the
// local version and drops its queued writes.
func (e *Engine) ResolveConflict(ctx context.Context, splitID string, choice Choice) (*models.Envelope, error) {
	var env *models.Envelope
	err := e.store.Mutate(ctx, func(tx *db.Tx) error {
		var err error
		if env, err = tx.GetIncludingDeleted(splitID); err != nil {
			return err
		}
		if env.ConflictData == nil {
			return fmt.Errorf("resolve %s: %w", splitID, ErrNoConflict)
		}
		if choice == KeepRemote {
			return tx.AcceptRemote(env)
		}
		now := tx.Now()
		env.ConflictData = nil
		env.PendingSync = true
		env.LocallyModified = true
		env.UpdatedAt = now
		env.SyncVersion++
		if err := tx.Put(env); err != nil {
			return err
		}
		// Writes held back during the conflict are replaced by one carrying
		// the chosen state, with a fresh retry count.
		if _, err := tx.DiscardPending(splitID); err != nil {
			return err
		}
		_, err = tx.Enqueue(requeueOp(*env), env.OwnerID())
		return err
	})
	if err != nil {
		return nil, err
	}
	e.afterMutation(ctx)
	return env, nil
}

// ResetRetries re-arms parked operations and triggers a sync.
func (e *Engine) ResetRetries(ctx context.Context) (int, error) {
	n, err := e.store.ResetRetries(ctx)
	if err != nil {
		return 0, err
	}
	e.afterMutation(ctx)
	return n, nil
}

// StuckOperations returns the operations automatic sync no longer retries.
func (e *Engine) StuckOperations(ctx context.Context) ([]models.OperationEntry, error) {
	return e.store.Stuck(ctx, e.cfg.MaxRetries)
}

// History returns the last n recorded sync cycles, oldest first.
func (e *Engine) History(ctx context.Context, n int) ([]db.SyncHistoryEntry, error) {
	return e.store.SyncHistoryTail(ctx, n)
}

// afterMutation republishes the pending count and fires a sync without
// waiting for it when online.
func (e *Engine) afterMutation(ctx context.Context) {
	e.refreshStatus(ctx)
	e.trigger("mutation")
}
