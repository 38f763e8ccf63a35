// Package config loads the sz client configuration from
// ~/.config/streamzone/config.toml with environment overrides, and keeps
// the logged-in session next to it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/streamzone/sz/internal/suggest"
)

const (
	configFileName = "config.toml"

	DefaultBackend     = "http"
	DefaultCloudURL    = "http://localhost:8080"
	DefaultProject     = "streamzone"
	DefaultTimeout     = 15 * time.Second
	DefaultConcurrency = 8
	DefaultLogLevel    = "warn"
	DefaultBlobDriver  = "fs"
)

// CloudConfig selects the remote document store
type CloudConfig struct {
	Backend         string `toml:"backend"`
	URL             string `toml:"url"`
	Project         string `toml:"project"`
	APIKey          string `toml:"api_key"`
	CredentialsFile string `toml:"credentials_file"`
}

// SyncConfig tunes the sync coordinator
type SyncConfig struct {
	Auto             *bool  `toml:"auto"`
	Timeout          string `toml:"timeout"`
	Concurrency      int    `toml:"concurrency"`
	CrossProcessLock *bool  `toml:"cross_process_lock"`
}

// LogConfig configures the default logger
type LogConfig struct {
	Level  string `toml:"level"`
	File   string `toml:"file"`
	Format string `toml:"format"`
}

// BlobConfig selects where service images go
type BlobConfig struct {
	Driver      string `toml:"driver"`
	Dir         string `toml:"dir"`
	S3Bucket    string `toml:"s3_bucket"`
	S3Region    string `toml:"s3_region"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3PathStyle bool   `toml:"s3_path_style"`
}

// Config is the whole client configuration
type Config struct {
	// DataDir holds the .streamzone directory; empty means the working directory
	DataDir string      `toml:"data_dir"`
	Cloud   CloudConfig `toml:"cloud"`
	Sync    SyncConfig  `toml:"sync"`
	Log     LogConfig   `toml:"log"`
	Blob    BlobConfig  `toml:"blob"`
}

// Dir returns the configuration directory, creating it if necessary.
// SZ_CONFIG_DIR overrides ~/.config/streamzone.
func Dir() (string, error) {
	dir := os.Getenv("SZ_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".config", "streamzone")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Path returns the config file path
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads the config file, fills defaults and applies environment
// overrides. Priority: env > file > default.
func Load() (*Config, error) {
	p, err := Path()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFile(p)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFile parses one config file as written, without defaults or
// environment. A missing file is an empty config.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveFile writes cfg atomically
func SaveFile(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data, 0o644)
}

func (c *Config) applyDefaults() {
	if c.Cloud.Backend == "" {
		c.Cloud.Backend = DefaultBackend
	}
	if c.Cloud.URL == "" {
		c.Cloud.URL = DefaultCloudURL
	}
	if c.Cloud.Project == "" {
		c.Cloud.Project = DefaultProject
	}
	if c.Sync.Concurrency <= 0 {
		c.Sync.Concurrency = DefaultConcurrency
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Blob.Driver == "" {
		c.Blob.Driver = DefaultBlobDriver
	}
	if c.Blob.Dir == "" {
		if dir, err := Dir(); err == nil {
			c.Blob.Dir = filepath.Join(dir, "blobs")
		}
	}
	c.Cloud.CredentialsFile = ExpandHome(c.Cloud.CredentialsFile)
	c.Log.File = ExpandHome(c.Log.File)
	c.Blob.Dir = ExpandHome(c.Blob.Dir)
	c.DataDir = ExpandHome(c.DataDir)
}

func (c *Config) applyEnv() {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("SZ_CLOUD_URL", &c.Cloud.URL)
	str("SZ_CLOUD_BACKEND", &c.Cloud.Backend)
	str("SZ_CLOUD_PROJECT", &c.Cloud.Project)
	str("SZ_API_KEY", &c.Cloud.APIKey)
	str("SZ_FIRESTORE_CREDENTIALS", &c.Cloud.CredentialsFile)
	str("SZ_SYNC_TIMEOUT", &c.Sync.Timeout)
	str("SZ_LOG_LEVEL", &c.Log.Level)
	str("SZ_LOG_FILE", &c.Log.File)
	str("SZ_BLOB_DRIVER", &c.Blob.Driver)
	str("SZ_BLOB_DIR", &c.Blob.Dir)
	str("SZ_BLOB_S3_BUCKET", &c.Blob.S3Bucket)
	str("SZ_BLOB_S3_REGION", &c.Blob.S3Region)
	str("SZ_BLOB_S3_ENDPOINT", &c.Blob.S3Endpoint)
	str("SZ_DIR", &c.DataDir)

	if v := parseBoolEnv("SZ_AUTO_SYNC"); v != nil {
		c.Sync.Auto = v
	}
	if v := os.Getenv("SZ_SYNC_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sync.Concurrency = n
		}
	}
}

// AutoSync reports whether mutating commands push afterwards (default true)
func (c *Config) AutoSync() bool {
	return c.Sync.Auto == nil || *c.Sync.Auto
}

// CrossProcessLock reports whether pushes take the file lock (default true)
func (c *Config) CrossProcessLock() bool {
	return c.Sync.CrossProcessLock == nil || *c.Sync.CrossProcessLock
}

// SyncTimeout is the per-call cloud timeout
func (c *Config) SyncTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Sync.Timeout); err == nil && d > 0 {
		return d
	}
	return DefaultTimeout
}

// BaseDir resolves the directory holding the local store
func (c *Config) BaseDir() (string, error) {
	if c.DataDir != "" {
		return filepath.Abs(c.DataDir)
	}
	return os.Getwd()
}

// Keys lists the dotted keys Get and Set accept
func Keys() []string {
	var keys []string
	walkFields(reflect.ValueOf(&Config{}).Elem(), "", func(key string, _ reflect.Value) {
		keys = append(keys, key)
	})
	sort.Strings(keys)
	return keys
}

// Get returns the value of a dotted key such as "cloud.url"
func (c *Config) Get(key string) (string, error) {
	v, ok := c.field(key)
	if !ok {
		return "", unknownKey(key)
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return "", nil
		}
		return strconv.FormatBool(v.Elem().Bool()), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int:
		return strconv.FormatInt(v.Int(), 10), nil
	}
	return v.String(), nil
}

// Set assigns a dotted key from its string form
func (c *Config) Set(key, value string) error {
	v, ok := c.field(key)
	if !ok {
		return unknownKey(key)
	}
	switch v.Kind() {
	case reflect.Pointer:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		v.Set(reflect.ValueOf(&b))
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		v.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		v.SetInt(int64(n))
	default:
		if key == "sync.timeout" && value != "" {
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
		v.SetString(value)
	}
	return nil
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key %q%s", key, suggest.Hint(key, Keys()))
}

func (c *Config) field(key string) (reflect.Value, bool) {
	var found reflect.Value
	walkFields(reflect.ValueOf(c).Elem(), "", func(k string, v reflect.Value) {
		if k == key {
			found = v
		}
	})
	return found, found.IsValid()
}

// walkFields visits every leaf field by its dotted toml key
func walkFields(v reflect.Value, prefix string, fn func(string, reflect.Value)) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("toml")
		if name == "" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		f := v.Field(i)
		if f.Kind() == reflect.Struct {
			walkFields(f, name, fn)
			continue
		}
		fn(name, f)
	}
}

// ExpandHome replaces a leading ~ with the home directory
func ExpandHome(p string) string {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// parseBoolEnv returns nil if env not set, pointer to bool if set
func parseBoolEnv(key string) *bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		b := true
		return &b
	case "0", "false", "no", "off":
		b := false
		return &b
	}
	return nil
}

// writeAtomic writes through a temp file in the same directory and renames it
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
