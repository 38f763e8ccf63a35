package serverdb

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"time"
)

const (
	apiKeyPrefix = "sz_live_"
	keyLength    = 32
)

// Scopes an API key may carry. admin implies the others.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"

	DefaultScopes = "read,write"
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// APIKey represents a stored API key (without the plaintext secret).
type APIKey struct {
	ID         string
	ProjectID  string
	KeyPrefix  string
	Name       string
	Scopes     string
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// ScopeList splits Scopes
func (k *APIKey) ScopeList() []string {
	return parseScopes(k.Scopes)
}

// HasScope reports whether the key grants scope
func (k *APIKey) HasScope(scope string) bool {
	list := k.ScopeList()
	return slices.Contains(list, scope) || slices.Contains(list, ScopeAdmin)
}

// NormalizeScopes validates a comma list of scopes and returns it sorted
// and deduplicated. Empty input yields DefaultScopes.
func NormalizeScopes(s string) (string, error) {
	list := parseScopes(s)
	if len(list) == 0 {
		return DefaultScopes, nil
	}
	for _, sc := range list {
		if sc != ScopeRead && sc != ScopeWrite && sc != ScopeAdmin {
			return "", fmt.Errorf("unknown scope %q (want read, write or admin)", sc)
		}
	}
	slices.Sort(list)
	return strings.Join(slices.Compact(list), ","), nil
}

func parseScopes(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GenerateAPIKey creates a new API key for the given project.
// Returns the plaintext key (shown once) and the stored APIKey record.
func (db *ServerDB) GenerateAPIKey(projectID, name, scopes string, expiresAt *time.Time) (string, *APIKey, error) {
	scopes, err := NormalizeScopes(scopes)
	if err != nil {
		return "", nil, err
	}

	p, err := db.GetProject(projectID, false)
	if err != nil {
		return "", nil, err
	}
	if p == nil {
		return "", nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}

	id, err := generateID("ak_")
	if err != nil {
		return "", nil, fmt.Errorf("generate api key id: %w", err)
	}

	// Generate random base62 key
	secret := make([]byte, keyLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate random key: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}

	plaintext := apiKeyPrefix + string(secret)
	prefix := string(secret[:8])

	now := time.Now().UTC()
	_, err = db.exec(
		`INSERT INTO api_keys (id, project_id, key_hash, key_prefix, name, scopes, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, projectID, hashKey(plaintext), prefix, name, scopes, nullTime(expiresAt), formatTime(now),
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert api key: %w", err)
	}

	ak := &APIKey{
		ID:        id,
		ProjectID: projectID,
		KeyPrefix: prefix,
		Name:      name,
		Scopes:    scopes,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	return plaintext, ak, nil
}

func hashKey(plaintext string) string {
	hash := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(hash[:])
}

// VerifyAPIKey checks a plaintext key against stored hashes. Unknown,
// expired, and keys of deleted projects return nil without error.
func (db *ServerDB) VerifyAPIKey(plaintextKey string) (*APIKey, error) {
	keyHash := hashKey(plaintextKey)

	ak, err := scanAPIKey(db.queryRow(`
		SELECT ak.id, ak.project_id, ak.key_prefix, ak.name, ak.scopes, ak.expires_at, ak.last_used_at, ak.created_at
		FROM api_keys ak
		JOIN projects p ON p.id = ak.project_id
		WHERE ak.key_hash = ? AND p.deleted_at IS NULL
	`, keyHash))
	if err == sql.ErrNoRows {
		slog.Debug("api key not found", "key_hash_prefix", keyHash[:8])
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify api key: %w", err)
	}

	now := time.Now().UTC()
	if ak.ExpiresAt != nil && ak.ExpiresAt.Before(now) {
		slog.Debug("api key expired", "key_id", ak.ID, "expires_at", ak.ExpiresAt)
		return nil, nil
	}

	if _, err := db.exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, formatTime(now), ak.ID); err != nil {
		slog.Warn("update last_used_at", "key_id", ak.ID, "err", err)
	}
	ak.LastUsedAt = &now

	return ak, nil
}

// RevokeAPIKey deletes an API key.
func (db *ServerDB) RevokeAPIKey(keyID string) error {
	res, err := db.exec(`DELETE FROM api_keys WHERE id = ?`, keyID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: api key %s", ErrNotFound, keyID)
	}
	return nil
}

// ListAPIKeys returns all API keys for a project (without secrets).
func (db *ServerDB) ListAPIKeys(projectID string) ([]*APIKey, error) {
	rows, err := db.query(
		`SELECT id, project_id, key_prefix, name, scopes, expires_at, last_used_at, created_at FROM api_keys WHERE project_id = ? ORDER BY created_at, id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		ak, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, ak)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys: iterate: %w", err)
	}
	return keys, nil
}

func scanAPIKey(row rowScanner) (*APIKey, error) {
	var (
		ak                APIKey
		expires, lastUsed sql.NullString
		createdAt         string
	)
	if err := row.Scan(&ak.ID, &ak.ProjectID, &ak.KeyPrefix, &ak.Name, &ak.Scopes, &expires, &lastUsed, &createdAt); err != nil {
		return nil, err
	}
	ak.ExpiresAt = parseNullTime(expires)
	ak.LastUsedAt = parseNullTime(lastUsed)
	ak.CreatedAt = parseTime(createdAt)
	return &ak, nil
}
