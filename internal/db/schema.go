package db

// SchemaVersion is the current database schema version
const SchemaVersion = 1

const schema = `
-- Cached splits with sync bookkeeping
CREATE TABLE IF NOT EXISTS splits (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    split_id TEXT NOT NULL UNIQUE,
    owner_id TEXT NOT NULL,
    name TEXT NOT NULL,
    date TEXT,
    participants TEXT NOT NULL DEFAULT '[]',
    expenses TEXT NOT NULL DEFAULT '[]',
    is_private INTEGER NOT NULL DEFAULT 0,
    updated_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    deleted_at TEXT,
    pending_sync INTEGER NOT NULL DEFAULT 0,
    locally_modified INTEGER NOT NULL DEFAULT 0,
    last_synced_at TEXT,
    sync_version INTEGER NOT NULL DEFAULT 0,
    conflict_data TEXT
);

CREATE INDEX IF NOT EXISTS idx_splits_owner ON splits(owner_id);
CREATE INDEX IF NOT EXISTS idx_splits_deleted ON splits(is_deleted);
CREATE INDEX IF NOT EXISTS idx_splits_pending ON splits(pending_sync);

-- Operation log
CREATE TABLE IF NOT EXISTS sync_operations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    op_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    owner_id TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    failure_kind TEXT NOT NULL DEFAULT '',
    completed INTEGER NOT NULL DEFAULT 0,
    completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_operations_entity ON sync_operations(entity_id);
CREATE INDEX IF NOT EXISTS idx_sync_operations_timestamp ON sync_operations(timestamp);
CREATE INDEX IF NOT EXISTS idx_sync_operations_completed ON sync_operations(completed);

-- Key/value sync metadata (lastSyncTime, userId)
CREATE TABLE IF NOT EXISTS sync_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- One row per sync cycle
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TEXT NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    pushed INTEGER NOT NULL DEFAULT 0,
    push_failed INTEGER NOT NULL DEFAULT 0,
    pulled INTEGER NOT NULL DEFAULT 0,
    conflicts INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);
`

// Migration defines a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all migrations in order. A fresh database is
// created from schema directly and stamped with SchemaVersion; entries here
// carry an existing database forward from an older stamp.
var Migrations = []Migration{}
