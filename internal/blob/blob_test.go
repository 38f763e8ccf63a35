package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// exerciseStore runs the same create-only contract against any driver
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	info, err := s.Put(ctx, "services/1/a.png", strings.NewReader("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Key != "services/1/a.png" || info.Size != int64(len("png-bytes")) {
		t.Errorf("info = %+v", info)
	}

	if _, err := s.Put(ctx, "services/1/a.png", strings.NewReader("again"), ""); !errors.Is(err, ErrExists) {
		t.Errorf("second Put err = %v, want ErrExists", err)
	}

	got, rc, err := s.Get(ctx, "services/1/a.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "png-bytes" {
		t.Errorf("body = %q, create-only store must keep the first write", body)
	}
	if got.ContentType != "image/png" {
		t.Errorf("content type = %q", got.ContentType)
	}

	if _, err := s.Put(ctx, "services/2/b.jpg", bytes.NewReader([]byte("jpg")), "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	list, err := s.List(ctx, "services/1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Key != "services/1/a.png" {
		t.Errorf("list = %+v", list)
	}

	removed, err := s.Delete(ctx, "services/1/a.png")
	if err != nil || !removed {
		t.Errorf("Delete = %v, %v", removed, err)
	}
	if removed, _ := s.Delete(ctx, "services/1/a.png"); removed {
		t.Error("second Delete should report nothing removed")
	}
	if _, err := s.Head(ctx, "services/1/a.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Head after delete err = %v", err)
	}
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing err = %v", err)
	}
}

func TestFSStore(t *testing.T) {
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	exerciseStore(t, s)
}

func TestFSRejectsTraversal(t *testing.T) {
	s, _ := NewFS(t.TempDir())
	for _, key := range []string{"", "../etc/passwd", "/abs", "a/../../b"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), ""); err == nil {
			t.Errorf("Put(%q) should fail", key)
		}
	}
}

func TestOpenDrivers(t *testing.T) {
	s, err := Open(context.Background(), Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Driver() != DriverFS {
		t.Errorf("driver = %s", s.Driver())
	}
	if _, err := Open(context.Background(), Options{Driver: DriverS3}); err == nil {
		t.Error("s3 without bucket should fail")
	}
	if _, err := Open(context.Background(), Options{Driver: "ftp"}); err == nil {
		t.Error("unknown driver should fail")
	}
}

func TestServiceImageKey(t *testing.T) {
	at := time.Unix(0, 42)
	if got := ServiceImageKey(7, "Logo.PNG", at); got != "services/7/42.png" {
		t.Errorf("key = %q", got)
	}
	if got := ContentTypeFor("x.JPEG"); got != "image/jpeg" {
		t.Errorf("content type = %q", got)
	}
}
