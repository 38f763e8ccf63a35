package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// RateLimitEvent represents a rate limit violation event.
type RateLimitEvent struct {
	ID            int64
	KeyID         string // empty string if IP-based (nullable in DB)
	IP            string
	EndpointClass string // read, write, listen, other
	CreatedAt     time.Time
}

// InsertRateLimitEvent inserts a rate limit violation event.
// keyID may be empty for IP-based rate limiting (stored as NULL).
func (db *ServerDB) InsertRateLimitEvent(keyID, ip, endpointClass string) error {
	var keyIDParam any
	if keyID != "" {
		keyIDParam = keyID
	}
	_, err := db.exec(
		`INSERT INTO rate_limit_events (key_id, ip, endpoint_class, created_at) VALUES (?, ?, ?, ?)`,
		keyIDParam, ip, endpointClass, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert rate limit event: %w", err)
	}
	return nil
}

// RecentRateLimitEvents returns events newer than since, newest first.
// An empty keyID matches every key.
func (db *ServerDB) RecentRateLimitEvents(keyID string, since time.Time, limit int) ([]RateLimitEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, key_id, ip, endpoint_class, created_at FROM rate_limit_events WHERE created_at >= ?`
	args := []any{formatTime(since)}
	if keyID != "" {
		query += ` AND key_id = ?`
		args = append(args, keyID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rate limit events: %w", err)
	}
	defer rows.Close()

	var out []RateLimitEvent
	for rows.Next() {
		var (
			e         RateLimitEvent
			keyIDNull sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &keyIDNull, &e.IP, &e.EndpointClass, &createdAt); err != nil {
			return nil, fmt.Errorf("scan rate limit event: %w", err)
		}
		e.KeyID = keyIDNull.String
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CleanupRateLimitEvents deletes events older than the given duration.
// Returns the number of rows deleted.
func (db *ServerDB) CleanupRateLimitEvents(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := db.exec(`DELETE FROM rate_limit_events WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
