package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Metadata keys.
const (
	KeyLastSyncTime = "lastSyncTime"
	KeyUserID       = "userId"
)

// Metadata returns the value stored under key, or "" when unset.
func (s *Store) Metadata(ctx context.Context, key string) (string, error) {
	var v string
	err := s.view(ctx, func(tx *Tx) error {
		var err error
		v, err = tx.Metadata(key)
		return err
	})
	return v, err
}

// SetMetadata stores value under key.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	return s.Mutate(ctx, func(tx *Tx) error {
		return tx.SetMetadata(key, value)
	})
}

// LastSyncTime returns the time of the last completed sync cycle, or nil if
// none has completed yet.
func (s *Store) LastSyncTime(ctx context.Context) (*time.Time, error) {
	v, err := s.Metadata(ctx, KeyLastSyncTime)
	if err != nil || v == "" {
		return nil, err
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, storageErr("read last sync time", err)
	}
	return &t, nil
}

// Metadata returns the value stored under key, or "" when unset.
func (t *Tx) Metadata(key string) (string, error) {
	var v string
	err := t.tx.QueryRow(`SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("read metadata "+key, err)
	}
	return v, nil
}

// SetMetadata upserts key.
func (t *Tx) SetMetadata(key, value string) error {
	_, err := t.tx.Exec(`INSERT INTO sync_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return storageErr("write metadata "+key, err)
	}
	return nil
}

// StampLastSyncTime records the transaction time as the last sync time.
func (t *Tx) StampLastSyncTime() error {
	return t.SetMetadata(KeyLastSyncTime, formatTime(t.now))
}
