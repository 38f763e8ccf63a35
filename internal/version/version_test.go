package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestIsDevelopmentVersion(t *testing.T) {
	dev := []string{"", "unknown", "dev", "devel", "devel+abc123", "devel+abc123+dirty"}
	release := []string{"v0.1.0", "1.0.0-rc.1", "develop", "my-devel", "DEV", "dev1.0.0"}
	for _, v := range dev {
		if !IsDevelopmentVersion(v) {
			t.Errorf("IsDevelopmentVersion(%q) = false", v)
		}
	}
	for _, v := range release {
		if IsDevelopmentVersion(v) {
			t.Errorf("IsDevelopmentVersion(%q) = true", v)
		}
	}
}

func TestUpdateCommand(t *testing.T) {
	for _, v := range []string{"v1.2.3", "1.2.3", "v0.3.0-beta", "v1.0.0-rc.1", "v2.0.0-rc1.test"} {
		want := `go install -ldflags "-X main.Version=` + v + `" github.com/streamzone/sz@` + v
		if got := UpdateCommand(v); got != want {
			t.Errorf("UpdateCommand(%q) = %q", v, got)
		}
	}
	rejected := []string{
		"", "invalid", `"; rm -rf /`, "v1.2.3; echo pwned", "v1.2.3$(whoami)",
		"../../.env", "v1.2.3--", "v1.2.3-", "v1.2.3-beta..rc", "v1.2.3-beta_release",
		"v1.2", "v1.2.3.4", "v1.a.3",
	}
	for _, v := range rejected {
		if got := UpdateCommand(v); got != "" {
			t.Errorf("UpdateCommand(%q) = %q, want empty", v, got)
		}
	}
}

func TestParseSemver(t *testing.T) {
	tests := []struct {
		in   string
		want [3]int
	}{
		{"v1.2.3", [3]int{1, 2, 3}},
		{"1.2.3", [3]int{1, 2, 3}},
		{"v2.0.0-rc.1", [3]int{2, 0, 0}},
		{"1.0.0+exp.sha.5114f85", [3]int{1, 0, 0}},
		{"v1.0.0-beta+build123", [3]int{1, 0, 0}},
		{"2.0", [3]int{2, 0, 0}},
		{"v5", [3]int{5, 0, 0}},
		{"", [3]int{}},
		{"no.numbers.here", [3]int{}},
		{"1000.0.0", [3]int{1000, 0, 0}},
	}
	for _, tt := range tests {
		if got := parseSemver(tt.in); got != tt.want {
			t.Errorf("parseSemver(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsNewer(t *testing.T) {
	tests := []struct {
		latest, current string
		want            bool
	}{
		{"v1.0.0", "v0.9.9", true},
		{"v0.10.0", "v0.9.0", true},
		{"v0.1.10", "v0.1.9", true},
		{"v1.2.3", "v1.2.3", false},
		{"v0.1.0", "v0.2.0", false},
		{"v1.0.0-beta", "v1.0.0", false},
		{"v1.0.0", "v1.0.0-beta", false},
		{"v1.0.0+build1", "v1.0.0+build2", false},
		{"1.0.0", "v0.9.9", true},
		{"v1.100.0", "v1.99.99", true},
	}
	for _, tt := range tests {
		if got := isNewer(tt.latest, tt.current); got != tt.want {
			t.Errorf("isNewer(%q, %q) = %v", tt.latest, tt.current, got)
		}
	}
}

func serveRelease(t *testing.T, tag string) *atomic.Int32 {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tag_name":"` + tag + `","html_url":"https://example.test/` + tag + `"}`))
	}))
	t.Cleanup(srv.Close)
	old := releaseURL
	releaseURL = srv.URL
	t.Cleanup(func() { releaseURL = old })
	return &hits
}

func TestCheck(t *testing.T) {
	serveRelease(t, "v1.4.0")
	res := Check(context.Background(), "v1.3.2")
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if !res.HasUpdate || res.LatestVersion != "v1.4.0" || !strings.HasSuffix(res.UpdateURL, "v1.4.0") {
		t.Errorf("res = %+v", res)
	}

	if res := Check(context.Background(), "dev"); res.LatestVersion != "" || res.HasUpdate {
		t.Errorf("dev build should not check: %+v", res)
	}
}

func TestCheckHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()
	old := releaseURL
	releaseURL = srv.URL
	defer func() { releaseURL = old }()

	if res := Check(context.Background(), "v1.0.0"); res.Error == nil {
		t.Fatal("expected error")
	}
}

func TestLatestUsesCache(t *testing.T) {
	t.Setenv("SZ_CONFIG_DIR", t.TempDir())
	hits := serveRelease(t, "v2.0.0")

	n := Latest(context.Background(), "v1.0.0")
	if n == nil || n.LatestVersion != "v2.0.0" || n.UpdateCommand == "" {
		t.Fatalf("notice = %+v", n)
	}
	if n := Latest(context.Background(), "v1.0.0"); n == nil {
		t.Fatal("cached notice missing")
	}
	if hits.Load() != 1 {
		t.Errorf("release fetched %d times, want 1", hits.Load())
	}

	// a different running version invalidates the cache
	if n := Latest(context.Background(), "v2.0.0"); n != nil {
		t.Errorf("up to date, got %+v", n)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d", hits.Load())
	}
}

func TestIsCacheValid(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		entry   *CacheEntry
		current string
		want    bool
	}{
		{"nil", nil, "v1.0.0", false},
		{"fresh", &CacheEntry{CurrentVersion: "v1.0.0", CheckedAt: now}, "v1.0.0", true},
		{"expired", &CacheEntry{CurrentVersion: "v1.0.0", CheckedAt: now.Add(-cacheTTL)}, "v1.0.0", false},
		{"upgraded", &CacheEntry{CurrentVersion: "v1.0.0", CheckedAt: now}, "v1.1.0", false},
	}
	for _, tt := range tests {
		if got := IsCacheValid(tt.entry, tt.current); got != tt.want {
			t.Errorf("%s: IsCacheValid = %v", tt.name, got)
		}
	}
}

func TestLoadCacheCorrupt(t *testing.T) {
	t.Setenv("SZ_CONFIG_DIR", t.TempDir())
	if _, err := LoadCache(); err == nil {
		t.Fatal("expected error for missing cache")
	}
	if err := SaveCache(&CacheEntry{LatestVersion: "v1"}); err != nil {
		t.Fatal(err)
	}
	e, err := LoadCache()
	if err != nil || e.LatestVersion != "v1" {
		t.Fatalf("LoadCache = %+v, %v", e, err)
	}
}
