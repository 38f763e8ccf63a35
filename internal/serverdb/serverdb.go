// Package serverdb is the storage layer of the sz-cloud document server:
// projects, project-scoped API keys, and schemaless JSON documents grouped
// into collections. It runs on SQLite for single-host installs and on
// Postgres when given a postgres:// DSN.
package serverdb

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"
)

// Dialects understood by OpenDriver
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// ErrNotFound is returned when a key or project to modify does not exist
var ErrNotFound = errors.New("not found")

// ServerDB wraps the server database connection
type ServerDB struct {
	conn    *sql.DB
	dialect string
	dsn     string
}

// Open opens the server database and runs any pending migrations.
// A postgres:// or postgresql:// DSN selects Postgres; anything else is a
// SQLite file path, created along with its directory if missing.
func Open(dsn string) (*ServerDB, error) {
	if IsPostgresDSN(dsn) {
		return OpenDriver("pgx", DialectPostgres, dsn)
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return OpenDriver("sqlite", DialectSQLite, dsn)
}

// IsPostgresDSN reports whether dsn addresses a Postgres server
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// OpenDriver opens dsn with an already registered database/sql driver and
// applies the schema for dialect.
func OpenDriver(driver, dialect, dsn string) (*ServerDB, error) {
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dialect == DialectSQLite {
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
		conn.Exec("PRAGMA synchronous=NORMAL")
		conn.Exec("PRAGMA foreign_keys=ON")
	} else if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := &ServerDB{conn: conn, dialect: dialect, dsn: dsn}

	if err := db.execScript(serverSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Dialect returns the SQL dialect in use
func (db *ServerDB) Dialect() string {
	return db.dialect
}

// Ping checks the database connection is alive.
func (db *ServerDB) Ping() error {
	return db.conn.Ping()
}

// Close checkpoints the WAL (SQLite) and closes the database connection.
func (db *ServerDB) Close() error {
	if db.dialect == DialectSQLite {
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return db.conn.Close()
}

// RunMigrations runs any pending database migrations.
func (db *ServerDB) RunMigrations() (int, error) {
	currentVersion := db.getSchemaVersion()
	if currentVersion >= ServerSchemaVersion {
		return 0, nil
	}

	migrationsRun := 0
	for _, m := range Migrations {
		if m.Version <= currentVersion {
			continue
		}
		if err := db.execScript(m.SQL); err != nil {
			return migrationsRun, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := db.setSchemaVersion(m.Version); err != nil {
			return migrationsRun, fmt.Errorf("set version %d: %w", m.Version, err)
		}
		migrationsRun++
	}

	if err := db.setSchemaVersion(ServerSchemaVersion); err != nil {
		return migrationsRun, err
	}
	return migrationsRun, nil
}

// SchemaVersion returns the stored schema version
func (db *ServerDB) SchemaVersion() int {
	return db.getSchemaVersion()
}

func (db *ServerDB) getSchemaVersion() int {
	var version string
	err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err != nil {
		return 0
	}
	v, _ := strconv.Atoi(version)
	return v
}

func (db *ServerDB) setSchemaVersion(version int) error {
	_, err := db.exec(
		`INSERT INTO schema_info (key, value) VALUES ('version', ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(version))
	return err
}

// execScript runs a multi-statement DDL script one statement at a time,
// substituting dialect-specific column types.
func (db *ServerDB) execScript(script string) error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.dialect == DialectPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}
	script = strings.ReplaceAll(script, "{{serial}}", serial)
	for _, stmt := range splitStatements(script) {
		if _, err := db.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var lines []string
	for _, line := range strings.Split(script, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			lines = append(lines, line)
		}
	}
	var out []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres
func (db *ServerDB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (db *ServerDB) exec(query string, args ...any) (sql.Result, error) {
	return db.conn.Exec(db.rebind(query), args...)
}

func (db *ServerDB) query(query string, args ...any) (*sql.Rows, error) {
	return db.conn.Query(db.rebind(query), args...)
}

func (db *ServerDB) queryRow(query string, args ...any) *sql.Row {
	return db.conn.QueryRow(db.rebind(query), args...)
}

// NewID generates a project ID (exported for callers that need to pre-generate IDs).
func NewID() string {
	id, err := generateID("p_")
	if err != nil {
		// crypto/rand failure is fatal
		panic("generate id: " + err.Error())
	}
	return id
}

// generateID creates a prefixed ID with 8 random hex chars.
func generateID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}

// Timestamps are stored as fixed-width UTC text so both dialects and every
// driver round-trip them and string order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return time.Time{}
		}
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}
