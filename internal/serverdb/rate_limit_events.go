package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// RateLimitEvent represents a rate limit violation event.
type RateLimitEvent struct {
	ID            int64
	UserID        string // empty when the caller was not authenticated
	IP            string
	EndpointClass string // read, write
	CreatedAt     time.Time
}

// InsertRateLimitEvent inserts a rate limit violation event.
// userID may be empty (stored as NULL).
func (db *ServerDB) InsertRateLimitEvent(userID, ip, endpointClass string) error {
	var userParam any
	if userID != "" {
		userParam = userID
	}
	_, err := db.conn.Exec(
		`INSERT INTO rate_limit_events (user_id, ip, endpoint_class, created_at) VALUES (?, ?, ?, ?)`,
		userParam, ip, endpointClass, db.now(),
	)
	if err != nil {
		return fmt.Errorf("insert rate limit event: %w", err)
	}
	return nil
}

// RecentRateLimitEvents returns up to limit events, newest first, optionally
// filtered by user.
func (db *ServerDB) RecentRateLimitEvents(userID string, limit int) ([]RateLimitEvent, error) {
	query := "SELECT id, user_id, ip, endpoint_class, created_at FROM rate_limit_events"
	var args []any
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rate limit events: %w", err)
	}
	defer rows.Close()

	var out []RateLimitEvent
	for rows.Next() {
		var e RateLimitEvent
		var user sql.NullString
		if err := rows.Scan(&e.ID, &user, &e.IP, &e.EndpointClass, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rate limit event: %w", err)
		}
		e.UserID = user.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// CleanupRateLimitEvents deletes events older than the given duration.
// Returns the number of rows deleted.
func (db *ServerDB) CleanupRateLimitEvents(olderThan time.Duration) (int64, error) {
	cutoff := db.now().Add(-olderThan)
	res, err := db.conn.Exec(
		`DELETE FROM rate_limit_events WHERE created_at < ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
