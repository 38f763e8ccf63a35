package db

import (
	"database/sql"
	"fmt"
	"strconv"
)

// Migration is a schema change applied once, in version order
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations lists every schema change. Version 1 is the base schema.
var Migrations = []Migration{
	{
		Version:     2,
		Description: "Track last push and pull per kind",
		SQL: `
CREATE TABLE IF NOT EXISTS sync_state (
    kind TEXT PRIMARY KEY,
    last_push_at TEXT NOT NULL DEFAULT '',
    last_push_success INTEGER NOT NULL DEFAULT 0,
    last_push_errors INTEGER NOT NULL DEFAULT 0,
    last_pull_at TEXT NOT NULL DEFAULT '',
    last_pull_count INTEGER NOT NULL DEFAULT 0
);`,
	},
	{
		Version:     3,
		Description: "Record last login per user",
		SQL:         `ALTER TABLE users ADD COLUMN last_login_at TEXT NOT NULL DEFAULT '';`,
	},
}

// columnExists checks whether a column exists on a table
func (db *DB) columnExists(table, column string) (bool, error) {
	rows, err := db.conn.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid, notnull, pk int
			name, ctype      string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// GetSchemaVersion returns the applied schema version, 0 for a fresh file
func (db *DB) GetSchemaVersion() (int, error) {
	var v string
	err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&v)
	if err != nil {
		// missing row or missing table both mean nothing applied yet
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", v, err)
	}
	return n, nil
}

func (db *DB) setSchemaVersion(version int) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		strconv.Itoa(version))
	return err
}

// RunMigrations applies pending migrations and returns how many ran
func (db *DB) RunMigrations() (int, error) {
	current, _ := db.GetSchemaVersion()
	if current >= SchemaVersion {
		return 0, nil
	}

	var ran int
	err := db.withWriteLock(func() error {
		var err error
		ran, err = db.runMigrations()
		return err
	})
	return ran, err
}

func (db *DB) runMigrations() (int, error) {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}

	current, err := db.GetSchemaVersion()
	if err != nil {
		return 0, err
	}
	if current == 0 {
		current = 1
		if err := db.setSchemaVersion(1); err != nil {
			return 0, fmt.Errorf("set version 1: %w", err)
		}
	}

	ran := 0
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		if m.Version == 3 {
			// tolerate stores created while the column was part of the base schema
			exists, err := db.columnExists("users", "last_login_at")
			if err != nil {
				return ran, fmt.Errorf("check column last_login_at: %w", err)
			}
			if exists {
				if err := db.setSchemaVersion(m.Version); err != nil {
					return ran, err
				}
				ran++
				continue
			}
		}
		if _, err := db.conn.Exec(m.SQL); err != nil {
			return ran, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := db.setSchemaVersion(m.Version); err != nil {
			return ran, fmt.Errorf("set version %d: %w", m.Version, err)
		}
		ran++
	}
	return ran, nil
}
