package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/streamzone/sz/internal/models"
	_ "modernc.org/sqlite"
)

const (
	dataDir = ".streamzone"
	dbFile  = "streamzone.db"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("not found")

// DB wraps the local store connection
type DB struct {
	conn    *sql.DB
	baseDir string

	// writeMu serializes writers inside this process; the file lock only
	// arbitrates between processes
	writeMu sync.Mutex
}

// Path returns the database file location for a base directory
func Path(baseDir string) string {
	return filepath.Join(baseDir, dataDir, dbFile)
}

// Dir returns the directory holding the database and its lock files
func Dir(baseDir string) string {
	return filepath.Join(baseDir, dataDir)
}

// Open opens an existing store and runs pending migrations
func Open(baseDir string) (*DB, error) {
	dbPath := Path(baseDir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: run 'sz init' first")
	}

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn, baseDir: baseDir}
	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Initialize creates the store, applies the schema and seeds the default
// roles and permissions. Safe to call on an existing store.
func Initialize(baseDir string) (*DB, error) {
	dbPath := Path(baseDir)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	db := &DB{conn: conn, baseDir: baseDir}
	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := db.seedDefaults(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}
	return db, nil
}

func openConn(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=500",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	conn.Exec("PRAGMA synchronous=NORMAL")
	return conn, nil
}

// Close closes the database
func (db *DB) Close() error {
	return db.conn.Close()
}

// BaseDir returns the directory the store was opened from
func (db *DB) BaseDir() string {
	return db.baseDir
}

// Conn returns the underlying connection for callers that need raw access
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// syncCols scans the trailing sincronizado/firebase_id pair of a row
type syncCols struct {
	synced int
	fid    sql.NullString
}

func (s *syncCols) dest() []any { return []any{&s.synced, &s.fid} }

func (s *syncCols) meta() models.SyncMeta {
	m := models.SyncMeta{Sincronizado: s.synced != 0}
	if s.fid.Valid {
		v := s.fid.String
		m.FirebaseID = &v
	}
	return m
}

// syncArgs returns insert args for a row's sync pair
func syncArgs(m models.SyncMeta) (int, any) {
	if m.Sincronizado && m.FirebaseID != nil {
		return 1, *m.FirebaseID
	}
	return 0, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime accepts the formats rows may carry; empty yields the zero time
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, f := range timeFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
