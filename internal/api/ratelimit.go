package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/streamzone/sz/internal/serverdb"
)

// RateLimiter implements per-key fixed-window rate limiting.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count    int
	windowAt time.Time
}

// NewRateLimiter creates a RateLimiter. Callers run Cleanup periodically.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket)}
}

// Allow checks if the key is within the rate limit (limit per 1-minute window).
func (rl *RateLimiter) Allow(key string, limit int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.windowAt) >= time.Minute {
		rl.buckets[key] = &bucket{count: 1, windowAt: now}
		return true
	}
	if b.count >= limit {
		return false
	}
	b.count++
	return true
}

// Cleanup drops buckets whose window ended more than a minute ago.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-2 * time.Minute)
	for k, b := range rl.buckets {
		if b.windowAt.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

// Endpoint classes used for limits and rate limit events
const (
	classRead   = "read"
	classWrite  = "write"
	classListen = "listen"
	classIP     = "ip"
)

// ipRateLimitMiddleware rate-limits /v1/ requests by client IP before any
// key lookup, which also bounds key guessing.
// When a rate limit is exceeded, the event is logged to the store.
func ipRateLimitMiddleware(rl *RateLimiter, limit int, store *serverdb.ServerDB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/v1/") {
				ip := clientIP(r)
				if !rl.Allow("ip:"+ip, limit) {
					if err := store.InsertRateLimitEvent("", ip, classIP); err != nil {
						logFor(r.Context()).Error("log rate limit event", "err", err)
					}
					writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// withRateLimit wraps an authenticated handler with per-key rate limiting.
// The key is derived from the API key in the request context.
// When a rate limit is exceeded, the event is logged to the store.
func (s *Server) withRateLimit(handler http.HandlerFunc, class string) http.HandlerFunc {
	limit := s.limitFor(class)
	return func(w http.ResponseWriter, r *http.Request) {
		ak := getKeyFromContext(r.Context())
		if ak == nil {
			handler(w, r)
			return
		}
		if !s.rateLimiter.Allow(fmt.Sprintf("key:%s:%s", ak.ID, class), limit) {
			if err := s.store.InsertRateLimitEvent(ak.ID, clientIP(r), class); err != nil {
				logFor(r.Context()).Error("log rate limit event", "err", err)
			}
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
			return
		}
		handler(w, r)
	}
}

func (s *Server) limitFor(class string) int {
	switch class {
	case classWrite:
		return s.config.RateLimitWrite
	case classListen:
		return s.config.RateLimitListen
	default:
		return s.config.RateLimitRead
	}
}

// clientIP extracts the client IP from the request, checking X-Forwarded-For first.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain is the original client
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
