// Package db is the local embedded store: cached splits with their sync
// bookkeeping, the operation log of queued mutations, and sync metadata.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrStorage wraps every failure of the embedded store itself.
	ErrStorage = errors.New("local storage")
	// ErrNotFound is returned when a split is absent or logically deleted.
	ErrNotFound = errors.New("split not found")
)

// DefaultFile is the database file name inside the data directory.
const DefaultFile = "splitsync.db"

// Store wraps the database connection
type Store struct {
	conn    *sql.DB
	path    string
	lockDir string
	now     func() time.Time
}

// Open opens (creating if needed) the store at path and runs pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, storageErr("create db dir", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("open database", err)
	}

	// Enable WAL mode for concurrent reads while writes are serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, storageErr("enable WAL mode", err)
	}

	// Busy timeout as fallback behind the write lock
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, storageErr("set busy timeout", err)
	}

	conn.Exec("PRAGMA synchronous=NORMAL")

	s := &Store{conn: conn, path: path, lockDir: filepath.Dir(path), now: time.Now}
	if _, err := s.RunMigrations(); err != nil {
		conn.Close()
		return nil, storageErr("run migrations", err)
	}
	return s, nil
}

// OpenMemory opens a non-persistent store. Used when the on-disk store
// cannot be opened and the engine falls back to offline-only operation.
func OpenMemory() (*Store, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, storageErr("open memory database", err)
	}
	return New(conn)
}

// New wraps an already opened connection. Each in-memory sqlite connection is
// its own database, so the pool is pinned to a single connection.
func New(conn *sql.DB) (*Store, error) {
	conn.SetMaxOpenConns(1)
	s := &Store{conn: conn, path: ":memory:", now: time.Now}
	if _, err := s.RunMigrations(); err != nil {
		conn.Close()
		return nil, storageErr("run migrations", err)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path, or ":memory:".
func (s *Store) Path() string {
	return s.path
}

// Persistent reports whether the store is backed by a file.
func (s *Store) Persistent() bool {
	return s.lockDir != ""
}

// SetClock overrides the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

// withWriteLock executes fn while holding the cross-process write lock.
// In-memory stores are private to the process and skip the lock.
func (s *Store) withWriteLock(fn func() error) error {
	if s.lockDir == "" {
		return fn()
	}
	locker := newWriteLocker(s.lockDir)
	if err := locker.acquire(defaultTimeout); err != nil {
		return storageErr("acquire write lock", err)
	}
	defer locker.release()
	return fn()
}

// Mutate runs fn in a single write transaction. Either every change made
// through tx is committed or none is.
func (s *Store) Mutate(ctx context.Context, fn func(tx *Tx) error) error {
	return s.withWriteLock(func() error {
		sqlTx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return storageErr("begin transaction", err)
		}
		defer sqlTx.Rollback()

		if err := fn(&Tx{tx: sqlTx, now: s.clock()}); err != nil {
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			return storageErr("commit", err)
		}
		return nil
	})
}

// view runs fn in a transaction that is always rolled back.
func (s *Store) view(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin read", err)
	}
	defer sqlTx.Rollback()
	return fn(&Tx{tx: sqlTx, now: s.clock()})
}

// Tx is a transaction-scoped view of the store.
type Tx struct {
	tx  *sql.Tx
	now time.Time
}

// Now returns the timestamp shared by every write in the transaction.
func (t *Tx) Now() time.Time {
	return t.now
}

// storageErr tags err as a storage failure. Sentinel errors the store
// returns on purpose pass through untouched.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// timeLayout is fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
