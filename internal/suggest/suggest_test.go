package suggest

import (
	"reflect"
	"testing"
)

var keys = []string{"auto_sync", "cloud.api_key", "cloud.backend", "cloud.url", "log.level", "log.file"}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestClosest(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"cloud.ulr", []string{"cloud.url"}},
		{"url", []string{"cloud.url"}},
		{"log.levle", []string{"log.level"}},
		{"autosync", []string{"auto_sync"}},
		{"nothing.close.here", nil},
	}
	for _, tt := range tests {
		if got := Closest(tt.in, keys); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Closest(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHint(t *testing.T) {
	if got := Hint("cloud.ulr", keys); got != " (did you mean cloud.url?)" {
		t.Errorf("Hint = %q", got)
	}
	if got := Hint("zzzzzzzz", keys); got != "" {
		t.Errorf("Hint = %q, want empty", got)
	}
}
