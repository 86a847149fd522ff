package db

import (
	"database/sql"
	"fmt"
)

// tableExists checks whether a table exists in the database
func (s *Store) tableExists(table string) (bool, error) {
	var count int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetSchemaVersion returns the current schema version from the database
func (s *Store) GetSchemaVersion() (int, error) {
	var version string
	err := s.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		// Table might not exist yet
		return 0, nil
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v, nil
}

func (s *Store) setSchemaVersion(version int) error {
	_, err := s.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// RunMigrations creates the schema on a fresh database or applies any
// pending migrations to an older one.
func (s *Store) RunMigrations() (int, error) {
	currentVersion, _ := s.GetSchemaVersion()
	if currentVersion >= SchemaVersion {
		return 0, nil
	}

	var migrationsRun int
	err := s.withWriteLock(func() error {
		var err error
		migrationsRun, err = s.runMigrationsInternal()
		return err
	})
	return migrationsRun, err
}

func (s *Store) runMigrationsInternal() (int, error) {
	if _, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}

	currentVersion, err := s.GetSchemaVersion()
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}

	if currentVersion == 0 {
		if _, err := s.conn.Exec(schema); err != nil {
			return 0, fmt.Errorf("create schema: %w", err)
		}
		return 0, s.setSchemaVersion(SchemaVersion)
	}

	migrationsRun := 0
	for _, m := range Migrations {
		if m.Version <= currentVersion {
			continue
		}
		if _, err := s.conn.Exec(m.SQL); err != nil {
			return migrationsRun, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := s.setSchemaVersion(m.Version); err != nil {
			return migrationsRun, fmt.Errorf("set version %d: %w", m.Version, err)
		}
		migrationsRun++
	}

	return migrationsRun, nil
}
