package db

import (
	"time"

	"github.com/streamzone/sz/internal/models"
)

// SyncState is the last push and pull outcome for one kind
type SyncState struct {
	Kind            models.Kind
	LastPushAt      time.Time
	LastPushSuccess int
	LastPushErrors  int
	LastPullAt      time.Time
	LastPullCount   int
}

// RecordPush stores the outcome of a push run
func (db *DB) RecordPush(kind models.Kind, success, errors int, at time.Time) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			INSERT INTO sync_state (kind, last_push_at, last_push_success, last_push_errors)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(kind) DO UPDATE SET
				last_push_at = excluded.last_push_at,
				last_push_success = excluded.last_push_success,
				last_push_errors = excluded.last_push_errors`,
			string(kind), formatTime(at), success, errors)
		return err
	})
}

// RecordPull stores the outcome of a pull run
func (db *DB) RecordPull(kind models.Kind, count int, at time.Time) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			INSERT INTO sync_state (kind, last_pull_at, last_pull_count)
			VALUES (?, ?, ?)
			ON CONFLICT(kind) DO UPDATE SET
				last_pull_at = excluded.last_pull_at,
				last_pull_count = excluded.last_pull_count`,
			string(kind), formatTime(at), count)
		return err
	})
}

// GetSyncStates returns the recorded state for every kind that has one
func (db *DB) GetSyncStates() (map[models.Kind]SyncState, error) {
	rows, err := db.conn.Query(`
		SELECT kind, last_push_at, last_push_success, last_push_errors, last_pull_at, last_pull_count
		FROM sync_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make(map[models.Kind]SyncState)
	for rows.Next() {
		var s SyncState
		var kind, pushAt, pullAt string
		if err := rows.Scan(&kind, &pushAt, &s.LastPushSuccess, &s.LastPushErrors, &pullAt, &s.LastPullCount); err != nil {
			return nil, err
		}
		s.Kind = models.Kind(kind)
		s.LastPushAt = parseTime(pushAt)
		s.LastPullAt = parseTime(pullAt)
		states[s.Kind] = s
	}
	return states, rows.Err()
}
