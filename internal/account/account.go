// Package account registers users and authenticates them against the local
// store, falling back to the cloud copy for users created on another device.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/streamzone/sz/internal/db"
	"github.com/streamzone/sz/internal/models"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = db.ErrEmailTaken
	ErrForbidden          = errors.New("permission denied")
)

// ValidationError describes one rejected registration field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Reconciler fetches a user's cloud record into the local store. It is
// satisfied by *sync.Coordinator.
type Reconciler interface {
	ReconcileUserAtLogin(ctx context.Context, email string) (*models.User, error)
}

// RegisterInput holds the fields of a new account
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

// Validate checks the input and normalizes its fields in place
func (in *RegisterInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)

	if in.Name == "" {
		return &ValidationError{"name", "required"}
	}
	if in.Email == "" {
		return &ValidationError{"email", "required"}
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return &ValidationError{"email", "not a valid address"}
	}
	if len(in.Password) < MinPasswordLength {
		return &ValidationError{"password", fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	return nil
}

// Register creates a local, unsynced user. The first user of an empty
// store becomes admin; everyone else is a client.
func Register(ctx context.Context, store *db.DB, in RegisterInput) (*models.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	count, err := store.CountUsers()
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	u := &models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Phone:        in.Phone,
	}
	if err := store.CreateUser(u); err != nil {
		return nil, err
	}

	roleName := models.RoleClient
	if count == 0 {
		roleName = models.RoleAdmin
	}
	role, err := store.GetRoleByName(roleName)
	if err != nil {
		return u, fmt.Errorf("find role %s: %w", roleName, err)
	}
	if _, err := store.AssignRole(u.ID, role.ID); err != nil {
		return u, fmt.Errorf("assign role %s: %w", roleName, err)
	}
	slog.Info("user registered", "id", u.ID, "role", roleName)
	return u, nil
}

// Login checks credentials against the local store. A user missing locally
// is looked up in the cloud through rec when rec is non-nil. Every failure
// the caller should show as "wrong credentials" is ErrInvalidCredentials.
func Login(ctx context.Context, store *db.DB, rec Reconciler, email, password string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := store.GetUserByEmail(email)
	if errors.Is(err, db.ErrNotFound) && rec != nil {
		slog.Debug("user not cached, reconciling", "email", email)
		if _, rerr := rec.ReconcileUserAtLogin(ctx, email); rerr != nil {
			slog.Debug("reconcile at login", "email", email, "err", rerr)
			return nil, ErrInvalidCredentials
		}
		u, err = store.GetUserByEmail(email)
	}
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := store.TouchLogin(u.ID, time.Now().UTC()); err != nil {
		slog.Debug("record login", "id", u.ID, "err", err)
	}
	return u, nil
}

// RequirePermission returns ErrForbidden unless one of the user's roles
// grants the named permission.
func RequirePermission(store *db.DB, userID int64, name string) error {
	ok, err := store.UserHasPermission(userID, name)
	if err != nil {
		return fmt.Errorf("check permission: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: requires %s", ErrForbidden, name)
	}
	return nil
}

// IsAdmin reports whether the user holds the admin role
func IsAdmin(store *db.DB, userID int64) (bool, error) {
	roles, err := store.RolesForUser(userID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r.Name == models.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}
