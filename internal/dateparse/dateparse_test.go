package dateparse

import (
	"testing"
	"time"
)

// Wednesday, 2026-02-18 12:00 UTC
var testNow = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestUntil(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-03-01", day(2026, 3, 2)},
		{"2025-12-31", day(2026, 1, 1)},
		{"today", day(2026, 2, 19)},
		{"TOMORROW", day(2026, 2, 20)},
		{"next-month", day(2026, 3, 1)},
		{"+12h", testNow.Add(12 * time.Hour)},
		{"+7d", testNow.AddDate(0, 0, 7)},
		{"+2w", testNow.AddDate(0, 0, 14)},
		{"+1m", testNow.AddDate(0, 1, 0)},
		{"friday", day(2026, 2, 21)},
		{" wednesday ", day(2026, 2, 26)},
	}
	for _, tt := range tests {
		got, err := Until(tt.input, testNow)
		if err != nil {
			t.Errorf("Until(%q): %v", tt.input, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("Until(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestUntilErrors(t *testing.T) {
	for _, in := range []string{"", "soon", "banana", "+0d", "+xd", "+3y"} {
		if _, err := Until(in, testNow); err == nil {
			t.Errorf("Until(%q): expected error", in)
		}
	}
}

func TestUntilNaturalLanguage(t *testing.T) {
	got, err := Until("in 3 days", testNow)
	if err != nil {
		t.Fatalf("Until: %v", err)
	}
	lo, hi := testNow.AddDate(0, 0, 2), testNow.AddDate(0, 0, 4)
	if got.Before(lo) || got.After(hi) {
		t.Errorf("Until(in 3 days) = %v, want about %v", got, testNow.AddDate(0, 0, 3))
	}
}
