package serverdb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/azula9713/yae-their-share/internal/models"
)

// CreateRecord stores a new record. The server owns the timestamps:
// UpdatedAt is always now, CreatedAt and Date default to now.
func (db *ServerDB) CreateRecord(s models.Split) (*models.Split, error) {
	now := db.now()
	s = s.Clone()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.Date == nil {
		s.Date = &now
	}
	if s.UpdatedBy == "" {
		s.UpdatedBy = s.CreatedBy
	}
	s.UpdatedAt = now
	s.IsDeleted = false
	s.DeletedAt = nil
	s = s.UTC()

	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	_, err = db.conn.Exec(`INSERT INTO records (split_id, owner_id, is_private, is_deleted, doc, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)`,
		s.SplitID, s.CreatedBy, s.IsPrivate, string(doc), s.CreatedAt, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("create record %s: %w", s.SplitID, ErrRecordExists)
		}
		return nil, fmt.Errorf("create record: %w", err)
	}
	return &s, nil
}

// UpdateRecord replaces an existing record. The owner and creation time of
// the stored record are kept; DeletedAt follows IsDeleted.
func (db *ServerDB) UpdateRecord(s models.Split) (*models.Split, error) {
	existing, err := db.GetRecord(s.SplitID)
	if err != nil {
		return nil, err
	}
	now := db.now()
	s = s.Clone()
	s.CreatedBy = existing.CreatedBy
	s.CreatedAt = existing.CreatedAt
	s.UpdatedAt = now
	switch {
	case !s.IsDeleted:
		s.DeletedAt = nil
	case existing.DeletedAt != nil:
		s.DeletedAt = existing.DeletedAt
	case s.DeletedAt == nil:
		s.DeletedAt = &now
	}
	if err := db.write(s.UTC(), now); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteRecord logically deletes a record. Deleting a deleted record keeps
// its original deletion time.
func (db *ServerDB) DeleteRecord(splitID string) (*models.Split, error) {
	s, err := db.GetRecord(splitID)
	if err != nil {
		return nil, err
	}
	if s.IsDeleted {
		return s, nil
	}
	now := db.now()
	s.IsDeleted = true
	s.DeletedAt = &now
	s.UpdatedAt = now
	if err := db.write(*s, now); err != nil {
		return nil, err
	}
	return s, nil
}

func (db *ServerDB) write(s models.Split, now time.Time) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	res, err := db.conn.Exec(`UPDATE records SET is_private = ?, is_deleted = ?, doc = ?, updated_at = ?
		WHERE split_id = ?`, s.IsPrivate, s.IsDeleted, string(doc), now, s.SplitID)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update record %s: %w", s.SplitID, ErrRecordNotFound)
	}
	return nil
}

// GetRecord returns a record, deleted or not.
func (db *ServerDB) GetRecord(splitID string) (*models.Split, error) {
	var doc string
	err := db.conn.QueryRow(`SELECT doc FROM records WHERE split_id = ?`, splitID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get record %s: %w", splitID, ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	var s models.Split
	if err := json.Unmarshal([]byte(doc), &s); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", splitID, err)
	}
	return &s, nil
}

// RecordsByOwner returns the owner's records in creation order. Logically
// deleted records are included only when includeDeleted is set.
func (db *ServerDB) RecordsByOwner(ownerID string, includeDeleted bool) ([]models.Split, error) {
	query := `SELECT doc FROM records WHERE owner_id = ?`
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}
	query += ` ORDER BY created_at ASC, split_id ASC`

	rows, err := db.conn.Query(query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := []models.Split{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var s models.Split
		if err := json.Unmarshal([]byte(doc), &s); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountRecords returns the number of live and logically deleted records.
func (db *ServerDB) CountRecords() (live, deleted int, err error) {
	err = db.conn.QueryRow(`SELECT
			COALESCE(SUM(CASE WHEN is_deleted = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_deleted = 1 THEN 1 ELSE 0 END), 0)
		FROM records`).Scan(&live, &deleted)
	if err != nil {
		return 0, 0, fmt.Errorf("count records: %w", err)
	}
	return live, deleted, nil
}
