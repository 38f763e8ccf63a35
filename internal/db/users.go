package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/streamzone/sz/internal/models"
)

// ErrEmailTaken is returned when creating a user whose email already exists
var ErrEmailTaken = errors.New("email already registered")

const userCols = `id, nombre, email, password_hash, telefono, created_at, sincronizado, firebase_id`

func scanUser(s scanner) (*models.User, error) {
	var u models.User
	var created string
	var sc syncCols
	dest := append([]any{&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Phone, &created}, sc.dest()...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(created)
	u.SyncMeta = sc.meta()
	return &u, nil
}

func (db *DB) queryUsers(where string, args ...any) ([]models.User, error) {
	rows, err := db.conn.Query(`SELECT `+userCols+` FROM users `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (db *DB) getUser(where string, args ...any) (*models.User, error) {
	u, err := scanUser(db.conn.QueryRow(`SELECT `+userCols+` FROM users `+where, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser inserts a new local user. Users created here start unsynced.
func (db *DB) CreateUser(u *models.User) error {
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = nowUTC()
	}
	u.SyncMeta = models.SyncMeta{}

	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			INSERT INTO users (nombre, email, password_hash, telefono, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			u.Name, u.Email, u.PasswordHash, u.Phone, formatTime(u.CreatedAt))
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		u.ID, err = res.LastInsertId()
		return err
	})
}

// GetUser returns a user by local ID
func (db *DB) GetUser(id int64) (*models.User, error) {
	return db.getUser(`WHERE id = ?`, id)
}

// GetUserByEmail returns a user by email, case-insensitively
func (db *DB) GetUserByEmail(email string) (*models.User, error) {
	return db.getUser(`WHERE email = ?`, strings.TrimSpace(strings.ToLower(email)))
}

// ListUsers returns every local user ordered by ID
func (db *DB) ListUsers() ([]models.User, error) {
	return db.queryUsers(`ORDER BY id`)
}

// CountUsers returns the number of local users
func (db *DB) CountUsers() (int64, error) {
	var n int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// UpdateUserProfile changes the editable profile fields. The sync flag is
// left untouched.
func (db *DB) UpdateUserProfile(id int64, name, phone string) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`UPDATE users SET nombre = ?, telefono = ? WHERE id = ?`, name, phone, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// TouchLogin records a successful login
func (db *DB) TouchLogin(id int64, at time.Time) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`UPDATE users SET last_login_at = ? WHERE id = ?`, formatTime(at), id)
		return err
	})
}

// LastLogin returns the recorded last login, zero when never logged in
func (db *DB) LastLogin(id int64) (time.Time, error) {
	var s string
	err := db.conn.QueryRow(`SELECT last_login_at FROM users WHERE id = ?`, id).Scan(&s)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	return parseTime(s), err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
