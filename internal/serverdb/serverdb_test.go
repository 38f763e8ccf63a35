package serverdb

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func newTestDB(t *testing.T) *ServerDB {
	t.Helper()
	db, err := OpenDriver("sqlite3", DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestProject(t *testing.T, db *ServerDB, id string) *Project {
	t.Helper()
	p, err := db.CreateProject(id, "Test "+id)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

// --- Open / schema ---

func TestOpenFileCreatesDirAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "server.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if db.Dialect() != DialectSQLite {
		t.Errorf("dialect = %s", db.Dialect())
	}
	newTestProject(t, db, "streamzone")
	db.Close()

	// reopening is a no-op migration and keeps data
	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if n, _ := db.RunMigrations(); n != 0 {
		t.Errorf("migrations on reopen = %d", n)
	}
	if p, _ := db.GetProject("streamzone", false); p == nil {
		t.Error("project lost across reopen")
	}
}

func TestSchemaVersion(t *testing.T) {
	db := newTestDB(t)
	if v := db.SchemaVersion(); v != ServerSchemaVersion {
		t.Errorf("schema version = %d, want %d", v, ServerSchemaVersion)
	}
}

func TestOpenDriverUnknownDialect(t *testing.T) {
	if _, err := OpenDriver("sqlite3", "oracle", ":memory:"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}

func TestIsPostgresDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want bool
	}{
		{"postgres://u:p@localhost/sz?sslmode=disable", true},
		{"postgresql://localhost/sz", true},
		{"./data/server.db", false},
		{":memory:", false},
	}
	for _, tt := range tests {
		if got := IsPostgresDSN(tt.dsn); got != tt.want {
			t.Errorf("IsPostgresDSN(%q) = %v", tt.dsn, got)
		}
	}
}

func TestRebindPostgres(t *testing.T) {
	pg := &ServerDB{dialect: DialectPostgres}
	got := pg.rebind(`SELECT 1 FROM documents WHERE project_id = ? AND id = ?`)
	if got != `SELECT 1 FROM documents WHERE project_id = $1 AND id = $2` {
		t.Errorf("rebind = %q", got)
	}
	lite := &ServerDB{dialect: DialectSQLite}
	if q := lite.rebind("a = ?"); q != "a = ?" {
		t.Errorf("sqlite rebind = %q", q)
	}
}

func TestSplitStatementsSkipsComments(t *testing.T) {
	stmts := splitStatements(serverSchema)
	for _, s := range stmts {
		if strings.HasPrefix(s, "--") || s == "" {
			t.Errorf("bad statement %q", s)
		}
	}
	if len(stmts) != 6 {
		t.Errorf("statements = %d, want 6", len(stmts))
	}
}

// --- Projects ---

func TestCreateProject(t *testing.T) {
	db := newTestDB(t)
	p, err := db.CreateProject("", "Generated")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if !strings.HasPrefix(p.ID, "p_") {
		t.Errorf("unexpected id prefix: %s", p.ID)
	}

	named := newTestProject(t, db, "streamzone")
	if named.ID != "streamzone" {
		t.Errorf("id = %s", named.ID)
	}
	if _, err := db.CreateProject("streamzone", "again"); !errors.Is(err, ErrProjectExists) {
		t.Errorf("duplicate err = %v", err)
	}
	if _, err := db.CreateProject("bad/id", ""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("invalid id err = %v", err)
	}

	list, err := db.ListProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("projects = %d", len(list))
	}
}

func TestGetProjectNotFound(t *testing.T) {
	db := newTestDB(t)
	p, err := db.GetProject("nope", false)
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Fatal("expected nil for missing project")
	}
}

func TestSoftDeleteProject(t *testing.T) {
	db := newTestDB(t)
	newTestProject(t, db, "gone")
	key, _, err := db.GenerateAPIKey("gone", "k", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := db.SoftDeleteProject("gone"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if p, _ := db.GetProject("gone", false); p != nil {
		t.Error("deleted project still visible")
	}
	if p, _ := db.GetProject("gone", true); p == nil || p.DeletedAt == nil {
		t.Error("deleted project should be visible with includeSoftDeleted")
	}
	if ak, _ := db.VerifyAPIKey(key); ak != nil {
		t.Error("key of a deleted project should not verify")
	}
	if err := db.SoftDeleteProject("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

// --- API keys ---

func TestGenerateAndVerifyAPIKey(t *testing.T) {
	db := newTestDB(t)
	newTestProject(t, db, "streamzone")

	plaintext, ak, err := db.GenerateAPIKey("streamzone", "laptop", "write,read,read", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(plaintext, apiKeyPrefix) {
		t.Errorf("key prefix: %s", plaintext)
	}
	if ak.Scopes != "read,write" {
		t.Errorf("scopes not normalized: %s", ak.Scopes)
	}

	verified, err := db.VerifyAPIKey(plaintext)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified == nil || verified.ID != ak.ID || verified.ProjectID != "streamzone" {
		t.Fatalf("verified = %+v", verified)
	}
	if verified.LastUsedAt == nil {
		t.Error("last_used_at not set")
	}
	if !verified.HasScope(ScopeWrite) || verified.HasScope(ScopeAdmin) {
		t.Errorf("scopes = %v", verified.ScopeList())
	}

	keys, _ := db.ListAPIKeys("streamzone")
	if len(keys) != 1 || keys[0].LastUsedAt == nil {
		t.Errorf("listed keys = %+v", keys)
	}
}

func TestGenerateAPIKeyValidation(t *testing.T) {
	db := newTestDB(t)
	if _, _, err := db.GenerateAPIKey("missing", "", "", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing project err = %v", err)
	}
	newTestProject(t, db, "streamzone")
	if _, _, err := db.GenerateAPIKey("streamzone", "", "sync", nil); err == nil {
		t.Error("unknown scope should fail")
	}
}

func TestAdminScopeImpliesAll(t *testing.T) {
	ak := &APIKey{Scopes: "admin"}
	for _, s := range []string{ScopeRead, ScopeWrite, ScopeAdmin} {
		if !ak.HasScope(s) {
			t.Errorf("admin key lacks %s", s)
		}
	}
	ro := &APIKey{Scopes: "read"}
	if ro.HasScope(ScopeWrite) {
		t.Error("read key has write")
	}
}

func TestVerifyAPIKeyInvalid(t *testing.T) {
	db := newTestDB(t)
	ak, err := db.VerifyAPIKey("sz_live_nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if ak != nil {
		t.Fatal("expected nil for invalid key")
	}
}

func TestVerifyAPIKeyExpired(t *testing.T) {
	db := newTestDB(t)
	newTestProject(t, db, "streamzone")
	past := time.Now().Add(-time.Hour)
	plaintext, _, err := db.GenerateAPIKey("streamzone", "old", "", &past)
	if err != nil {
		t.Fatal(err)
	}
	ak, err := db.VerifyAPIKey(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if ak != nil {
		t.Fatal("expected nil for expired key")
	}
}

func TestRevokeAPIKey(t *testing.T) {
	db := newTestDB(t)
	newTestProject(t, db, "streamzone")
	plaintext, ak, _ := db.GenerateAPIKey("streamzone", "", "", nil)

	if err := db.RevokeAPIKey(ak.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if v, _ := db.VerifyAPIKey(plaintext); v != nil {
		t.Error("revoked key still verifies")
	}
	if err := db.RevokeAPIKey(ak.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second revoke err = %v", err)
	}
}

// --- Documents ---

func TestDocumentLifecycle(t *testing.T) {
	db := newTestDB(t)
	newTestProject(t, db, "streamzone")

	doc, err := db.AddDocument("streamzone", "usuarios", map[string]any{"email": "ana@x.com", "age": 30})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(doc.ID) != 20 {
		t.Errorf("id %q is not 20 chars", doc.ID)
	}

	got, err := db.GetDocument("streamzone", "usuarios", doc.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Data["email"] != "ana@x.com" || got.Data["age"] != float64(30) {
		t.Errorf("data = %v", got.Data)
	}

	updated, created, err := db.SetDocument("streamzone", "usuarios", doc.ID, map[string]any{"email": "ana@y.com"})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if created {
		t.Error("set on existing doc reported created")
	}
	if !updated.CreateTime.Equal(got.CreateTime) {
		t.Errorf("create time changed: %v -> %v", got.CreateTime, updated.CreateTime)
	}
	got, _ = db.GetDocument("streamzone", "usuarios", doc.ID)
	if got.Data["email"] != "ana@y.com" || got.Data["age"] != nil {
		t.Errorf("set should replace the document, got %v", got.Data)
	}

	existed, err := db.DeleteDocument("streamzone", "usuarios", doc.ID)
	if err != nil || !existed {
		t.Fatalf("delete: %v %v", existed, err)
	}
	if existed, _ := db.DeleteDocument("streamzone", "usuarios", doc.ID); existed {
		t.Error("second delete reported existing")
	}
	if got, _ := db.GetDocument("streamzone", "usuarios", doc.ID); got != nil {
		t.Error("document still present after delete")
	}
}

func TestSetDocumentCreates(t *testing.T) {
	db := newTestDB(t)
	newTestProject(t, db, "streamzone")
	_, created, err := db.SetDocument("streamzone", "roles", "admin-role", map[string]any{"name": "admin"})
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first set should report created")
	}
	if _, _, err := db.SetDocument("streamzone", "roles", "bad id", nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("bad id err = %v", err)
	}
}

func TestListAndWhereDocuments(t *testing.T) {
	db := newTestDB(t)
	newTestProject(t, db, "streamzone")
	newTestProject(t, db, "other")

	for _, d := range []map[string]any{
		{"name": "Netflix", "price": 15.99, "active": true},
		{"name": "Max", "price": 9.99, "active": false},
		{"name": "Disney", "price": 15.99, "active": true},
	} {
		if _, err := db.AddDocument("streamzone", "services", d); err != nil {
			t.Fatal(err)
		}
	}
	db.AddDocument("other", "services", map[string]any{"name": "Hidden", "price": 15.99})

	all, err := db.ListDocuments("streamzone", "services")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("list = %d docs", len(all))
	}

	tests := []struct {
		field string
		value any
		want  int
	}{
		{"price", 15.99, 2},
		{"active", false, 1},
		{"name", "Max", 1},
		{"name", "Nope", 0},
		{"missing", nil, 0},
	}
	for _, tt := range tests {
		got, err := db.WhereDocuments("streamzone", "services", tt.field, tt.value)
		if err != nil {
			t.Fatalf("where %s: %v", tt.field, err)
		}
		if len(got) != tt.want {
			t.Errorf("where %s == %v: %d docs, want %d", tt.field, tt.value, len(got), tt.want)
		}
	}

	empty, err := db.ListDocuments("streamzone", "nothing")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("empty collection = %v, %v", empty, err)
	}

	if n, _ := db.CountDocuments("streamzone"); n != 3 {
		t.Errorf("count = %d", n)
	}
}

func TestWhereMatchesIntegralNumbers(t *testing.T) {
	db := newTestDB(t)
	newTestProject(t, db, "streamzone")
	db.AddDocument("streamzone", "user_roles", map[string]any{"user_id": 7})

	got, err := db.WhereDocuments("streamzone", "user_roles", "user_id", int64(7))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("int64 7 should match stored 7, got %d", len(got))
	}
}
