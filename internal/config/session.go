package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	sessionFileName = "session.json"
	deviceFileName  = "device_id"
)

// ErrNotLoggedIn is returned when a command needs a session and there is none
var ErrNotLoggedIn = errors.New("not logged in (run 'sz login')")

// Session is the logged-in user, stored at ~/.config/streamzone/session.json
type Session struct {
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	FirebaseID string    `json:"firebase_id,omitempty"`
	DeviceID   string    `json:"device_id"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

func sessionPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sessionFileName), nil
}

// LoadSession returns the current session or ErrNotLoggedIn
func LoadSession() (*Session, error) {
	p, err := sessionPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if s.UserID == 0 {
		return nil, ErrNotLoggedIn
	}
	return &s, nil
}

// SaveSession writes the session with 0600 permissions
func SaveSession(s *Session) error {
	p, err := sessionPath()
	if err != nil {
		return err
	}
	if s.DeviceID == "" {
		if s.DeviceID, err = DeviceID(); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(p, data, 0o600)
}

// ClearSession logs out. Clearing an absent session is not an error.
func ClearSession() error {
	p, err := sessionPath()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DeviceID returns this machine's ID, generating and storing one on first use
func DeviceID() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, deviceFileName)
	if data, err := os.ReadFile(p); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}
	id := uuid.NewString()
	if err := writeAtomic(p, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("store device id: %w", err)
	}
	return id, nil
}
