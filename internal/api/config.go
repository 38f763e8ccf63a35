package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the server configuration. Every key can be set in an
// optional config file or through SZ_CLOUD_<KEY> environment variables.
type Config struct {
	ListenAddr      string
	DatabaseDSN     string // SQLite path or postgres:// DSN
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	LogFormat string // "json" (default) or "text"
	LogLevel  string // "debug", "info" (default), "warn", "error"
	LogFile   string // rotated file; empty logs to stderr

	RateLimitRead   int // document reads per API key per minute (default: 600)
	RateLimitWrite  int // document writes per API key per minute (default: 300)
	RateLimitListen int // listen connections per API key per minute (default: 30)
	RateLimitIP     int // any /v1 request per client IP per minute (default: 1200)

	RateLimitEventRetention time.Duration // retention period for rate limit events (default: 30 days)

	CORSAllowedOrigins []string // also the websocket origin patterns; empty = same origin only

	WebhookURL         string   // change events are POSTed here; empty disables
	WebhookSecret      string   // HMAC key for the X-SZ-Signature header
	WebhookCollections []string // empty forwards every collection
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		DatabaseDSN:     "./data/sz-cloud.db",
		ShutdownTimeout: 30 * time.Second,
		MaxBodyBytes:    10 << 20,
		LogFormat:       "json",
		LogLevel:        "info",

		RateLimitRead:   600,
		RateLimitWrite:  300,
		RateLimitListen: 30,
		RateLimitIP:     1200,

		RateLimitEventRetention: 30 * 24 * time.Hour,
	}
}

// LoadConfig reads configuration with priority env > file > default.
// configFile may be empty; SZ_CLOUD_CONFIG is used then.
func LoadConfig(configFile string) (Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("SZ_CLOUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("database", def.DatabaseDSN)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("max_body_bytes", def.MaxBodyBytes)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("rate_limit_read", def.RateLimitRead)
	v.SetDefault("rate_limit_write", def.RateLimitWrite)
	v.SetDefault("rate_limit_listen", def.RateLimitListen)
	v.SetDefault("rate_limit_ip", def.RateLimitIP)
	v.SetDefault("rate_limit_event_retention", "30d")
	v.SetDefault("cors_allowed_origins", []string{})
	v.SetDefault("webhook_url", "")
	v.SetDefault("webhook_secret", "")
	v.SetDefault("webhook_collections", []string{})

	if configFile == "" {
		configFile = v.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := Config{
		ListenAddr:      v.GetString("listen_addr"),
		DatabaseDSN:     v.GetString("database"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		MaxBodyBytes:    v.GetInt64("max_body_bytes"),
		LogFormat:       v.GetString("log_format"),
		LogLevel:        v.GetString("log_level"),
		LogFile:         v.GetString("log_file"),

		RateLimitRead:   positive(v.GetInt("rate_limit_read"), def.RateLimitRead),
		RateLimitWrite:  positive(v.GetInt("rate_limit_write"), def.RateLimitWrite),
		RateLimitListen: positive(v.GetInt("rate_limit_listen"), def.RateLimitListen),
		RateLimitIP:     positive(v.GetInt("rate_limit_ip"), def.RateLimitIP),

		WebhookURL:    v.GetString("webhook_url"),
		WebhookSecret: v.GetString("webhook_secret"),
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	cfg.RateLimitEventRetention = parseDaysDuration(v.GetString("rate_limit_event_retention"))
	if cfg.RateLimitEventRetention <= 0 {
		cfg.RateLimitEventRetention = def.RateLimitEventRetention
	}

	cfg.CORSAllowedOrigins = stringList(v.GetStringSlice("cors_allowed_origins"))
	cfg.WebhookCollections = stringList(v.GetStringSlice("webhook_collections"))

	return cfg, nil
}

// stringList flattens a viper slice. Env gives one comma-separated string,
// files give a list.
func stringList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

func positive(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

// parseDaysDuration parses a string like "90d", "30d" into a time.Duration.
// Falls back to time.ParseDuration for standard Go durations.
func parseDaysDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		numStr := strings.TrimSuffix(s, "d")
		if n, err := strconv.Atoi(numStr); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 0
}
