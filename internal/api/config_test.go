package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearCloudEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SZ_CLOUD_CONFIG", "SZ_CLOUD_LISTEN_ADDR", "SZ_CLOUD_DATABASE", "SZ_CLOUD_SHUTDOWN_TIMEOUT",
		"SZ_CLOUD_LOG_FORMAT", "SZ_CLOUD_LOG_LEVEL", "SZ_CLOUD_RATE_LIMIT_WRITE",
		"SZ_CLOUD_RATE_LIMIT_EVENT_RETENTION", "SZ_CLOUD_CORS_ALLOWED_ORIGINS",
		"SZ_CLOUD_WEBHOOK_URL", "SZ_CLOUD_WEBHOOK_SECRET", "SZ_CLOUD_WEBHOOK_COLLECTIONS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearCloudEnv(t)
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	def := DefaultConfig()
	if cfg.ListenAddr != def.ListenAddr || cfg.DatabaseDSN != def.DatabaseDSN {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RateLimitWrite != def.RateLimitWrite || cfg.RateLimitEventRetention != 30*24*time.Hour {
		t.Errorf("limits = %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Errorf("origins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	clearCloudEnv(t)
	path := filepath.Join(t.TempDir(), "sz-cloud.toml")
	content := `
listen_addr = ":9000"
database = "postgres://sz@db/sz"
shutdown_timeout = "5s"
rate_limit_write = 10
cors_allowed_origins = ["https://admin.streamzone.test"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SZ_CLOUD_LISTEN_ADDR", ":9100")
	t.Setenv("SZ_CLOUD_RATE_LIMIT_EVENT_RETENTION", "7d")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":9100" {
		t.Errorf("listen = %q, env should win", cfg.ListenAddr)
	}
	if cfg.DatabaseDSN != "postgres://sz@db/sz" || cfg.ShutdownTimeout != 5*time.Second || cfg.RateLimitWrite != 10 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RateLimitEventRetention != 7*24*time.Hour {
		t.Errorf("retention = %v", cfg.RateLimitEventRetention)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "https://admin.streamzone.test" {
		t.Errorf("origins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigEnvOrigins(t *testing.T) {
	clearCloudEnv(t)
	t.Setenv("SZ_CLOUD_CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.test" {
		t.Errorf("origins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearCloudEnv(t)
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestParseDaysDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"90d", 90 * 24 * time.Hour},
		{"1d", 24 * time.Hour},
		{"12h", 12 * time.Hour},
		{"0d", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseDaysDuration(tt.in); got != tt.want {
			t.Errorf("parseDaysDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadConfigWebhook(t *testing.T) {
	clearCloudEnv(t)
	t.Setenv("SZ_CLOUD_WEBHOOK_URL", "https://hooks.streamzone.test/sz")
	t.Setenv("SZ_CLOUD_WEBHOOK_COLLECTIONS", "purchases,notifications")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WebhookURL != "https://hooks.streamzone.test/sz" || cfg.WebhookSecret != "" {
		t.Errorf("webhook = %q / %q", cfg.WebhookURL, cfg.WebhookSecret)
	}
	if len(cfg.WebhookCollections) != 2 || cfg.WebhookCollections[0] != "purchases" {
		t.Errorf("collections = %v", cfg.WebhookCollections)
	}
}
