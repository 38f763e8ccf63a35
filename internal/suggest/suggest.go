// Package suggest finds near misses for mistyped names using Levenshtein
// distance.
package suggest

import (
	"sort"
	"strings"
)

func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

const maxDistance = 2

// Closest returns up to three candidates near unknown, best first.
// A candidate whose last dotted segment matches exactly always qualifies, so
// "url" finds "cloud.url".
func Closest(unknown string, candidates []string) []string {
	unknown = strings.ToLower(strings.TrimSpace(unknown))
	type scored struct {
		name  string
		score int
	}
	var hits []scored
	for _, c := range candidates {
		lc := strings.ToLower(c)
		d := levenshtein(unknown, lc)
		if i := strings.LastIndexByte(lc, '.'); i >= 0 && lc[i+1:] == unknown {
			d = 0
		}
		if d <= maxDistance {
			hits = append(hits, scored{c, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score < hits[j].score })

	var out []string
	for i := 0; i < len(hits) && i < 3; i++ {
		out = append(out, hits[i].name)
	}
	return out
}

// Hint formats Closest as " (did you mean x?)", or "" when nothing is near.
func Hint(unknown string, candidates []string) string {
	hits := Closest(unknown, candidates)
	if len(hits) == 0 {
		return ""
	}
	return " (did you mean " + strings.Join(hits, " or ") + "?)"
}
