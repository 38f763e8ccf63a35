package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/streamzone/sz/internal/models"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := Stdout
	Stdout = &buf
	t.Cleanup(func() { Stdout = old })
	return &buf
}

func TestFormatTimeAgo(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{time.Minute, "1m ago"},
		{30 * time.Minute, "30m ago"},
		{2 * time.Hour, "2h ago"},
		{23 * time.Hour, "23h ago"},
		{48 * time.Hour, "2d ago"},
	}
	for _, tc := range tests {
		if got := FormatTimeAgo(time.Now().Add(-tc.ago)); got != tc.want {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.ago, got, tc.want)
		}
	}

	old := time.Date(2020, 3, 4, 0, 0, 0, 0, time.UTC)
	if got := FormatTimeAgo(old); got != "2020-03-04" {
		t.Errorf("old date = %q", got)
	}
	if got := FormatTimeAgo(time.Time{}); got != "never" {
		t.Errorf("zero time = %q", got)
	}
}

func TestMessages(t *testing.T) {
	buf := capture(t)
	Success("bought %s", "Netflix")
	Error("boom %d", 1)
	Warning("careful")
	Info("plain")

	out := buf.String()
	for _, want := range []string{"bought Netflix", "ERROR: boom 1", "Warning: careful", "plain"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestJSONError(t *testing.T) {
	buf := capture(t)
	JSONError(ErrCodeNotFound, `service "7" not found`)

	var got struct {
		Error struct{ Code, Message string }
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if got.Error.Code != ErrCodeNotFound || got.Error.Message != `service "7" not found` {
		t.Errorf("decoded = %+v", got)
	}
}

func TestFormatPurchase(t *testing.T) {
	p := &models.Purchase{ID: 3, ServiceID: 9, AmountCents: 1250, Status: models.PurchaseApproved, CreatedAt: time.Now()}
	got := FormatPurchase(p, "")
	for _, want := range []string{"#3", "service 9", "$12.50", "[approved]", "just now"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatPurchase = %q, missing %q", got, want)
		}
	}
}

func TestFormatServiceLong(t *testing.T) {
	s := &models.Service{ID: 1, Name: "Netflix", PriceCents: 1599, Description: "Series", Active: false}
	offers := []models.Offer{{ID: 2, Title: "Promo", DiscountPercent: 20, PriceCents: 1279}}
	got := FormatServiceLong(s, "Video", offers)
	for _, want := range []string{"#1: Netflix", "$15.99", "Category: Video", "Inactive", "OFFERS:", "-20%", "$12.79", "pending"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatServiceLong missing %q:\n%s", want, got)
		}
	}
}

func TestSyncMark(t *testing.T) {
	if got := SyncMark(models.Synced("abc")); !strings.Contains(got, "synced") {
		t.Errorf("synced mark = %q", got)
	}
	if got := SyncMark(models.SyncMeta{}); !strings.Contains(got, "pending") {
		t.Errorf("pending mark = %q", got)
	}
}

func TestTable(t *testing.T) {
	got := Table([]string{"ID", "NAME"}, [][]string{{"1", "Netflix"}, {"2", "Max"}})
	for _, want := range []string{"ID", "NAME", "Netflix", "Max"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}
}
