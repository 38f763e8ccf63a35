package version

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/streamzone/sz/internal/config"
)

const (
	cacheFileName = "version_cache.json"
	cacheTTL      = 6 * time.Hour
)

// CacheEntry is the last successful check, kept in the config directory
type CacheEntry struct {
	LatestVersion  string    `json:"latest_version"`
	CurrentVersion string    `json:"current_version"`
	CheckedAt      time.Time `json:"checked_at"`
	HasUpdate      bool      `json:"has_update"`
}

// Notice tells the user an update exists
type Notice struct {
	CurrentVersion string
	LatestVersion  string
	UpdateCommand  string
}

func cachePath() string {
	dir, err := config.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, cacheFileName)
}

// LoadCache reads the cached check
func LoadCache() (*CacheEntry, error) {
	data, err := os.ReadFile(cachePath())
	if err != nil {
		return nil, err
	}
	var e CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// SaveCache writes the cached check
func SaveCache(e *CacheEntry) error {
	p := cachePath()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// IsCacheValid reports whether e answers for currentVersion and is fresh
func IsCacheValid(e *CacheEntry, currentVersion string) bool {
	if e == nil || e.CurrentVersion != currentVersion {
		return false
	}
	return time.Since(e.CheckedAt) < cacheTTL
}

// Latest returns a Notice when a newer release exists, consulting the
// cache first. Network errors yield nil and are not cached.
func Latest(ctx context.Context, currentVersion string) *Notice {
	if IsDevelopmentVersion(currentVersion) {
		return nil
	}
	if cached, err := LoadCache(); err == nil && IsCacheValid(cached, currentVersion) {
		if cached.HasUpdate {
			return &Notice{currentVersion, cached.LatestVersion, UpdateCommand(cached.LatestVersion)}
		}
		return nil
	}

	result := Check(ctx, currentVersion)
	if result.Error != nil {
		return nil
	}
	_ = SaveCache(&CacheEntry{
		LatestVersion:  result.LatestVersion,
		CurrentVersion: currentVersion,
		CheckedAt:      time.Now(),
		HasUpdate:      result.HasUpdate,
	})
	if !result.HasUpdate {
		return nil
	}
	return &Notice{currentVersion, result.LatestVersion, UpdateCommand(result.LatestVersion)}
}
