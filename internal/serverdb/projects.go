package serverdb

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrProjectExists is returned by CreateProject for a taken ID
	ErrProjectExists = errors.New("project already exists")
	// ErrInvalidName rejects IDs that cannot appear in a URL path segment
	ErrInvalidName = errors.New("invalid name")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidName reports whether s is usable as a project, collection or
// document ID in a URL path segment.
func ValidName(s string) bool {
	return namePattern.MatchString(s)
}

// Project is one tenant of the document server.
type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// CreateProject creates a project. An empty id generates one.
func (db *ServerDB) CreateProject(id, name string) (*Project, error) {
	if id == "" {
		id = NewID()
	}
	if !ValidName(id) {
		return nil, fmt.Errorf("%w: project id %q", ErrInvalidName, id)
	}
	if name == "" {
		name = id
	}

	existing, err := db.GetProject(id, true)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectExists, id)
	}

	now := time.Now().UTC()
	if _, err := db.exec(
		`INSERT INTO projects (id, name, created_at) VALUES (?, ?, ?)`,
		id, name, formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return &Project{ID: id, Name: name, CreatedAt: now}, nil
}

// GetProject returns a project by ID, or nil if none. If includeSoftDeleted
// is false, soft-deleted projects are excluded.
func (db *ServerDB) GetProject(id string, includeSoftDeleted bool) (*Project, error) {
	query := `SELECT id, name, created_at, deleted_at FROM projects WHERE id = ?`
	if !includeSoftDeleted {
		query += ` AND deleted_at IS NULL`
	}
	p, err := scanProject(db.queryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns all live projects ordered by creation
func (db *ServerDB) ListProjects() ([]*Project, error) {
	rows, err := db.query(`SELECT id, name, created_at, deleted_at FROM projects WHERE deleted_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SoftDeleteProject hides a project; its keys stop verifying.
func (db *ServerDB) SoftDeleteProject(id string) error {
	res, err := db.exec(`UPDATE projects SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var (
		p         Project
		createdAt string
		deletedAt sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &createdAt, &deletedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.DeletedAt = parseNullTime(deletedAt)
	return &p, nil
}
