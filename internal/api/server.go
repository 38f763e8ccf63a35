// Package api is the HTTP surface of sz-cloud: a Firestore-shaped document
// API (projects, collections, documents, change listeners) over serverdb.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/streamzone/sz/internal/serverdb"
	"github.com/streamzone/sz/internal/webhook"
)

// maintenanceInterval is how often rate limit state is pruned.
const maintenanceInterval = 5 * time.Minute

// Server is the HTTP API server for sz-cloud.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	hub         *Hub
	webhook     *webhook.Dispatcher
	metrics     *Metrics
	rateLimiter *RateLimiter
	listener    net.Listener
	cancel      context.CancelFunc
	webhookDone chan struct{}
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg Config, store *serverdb.ServerDB) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	s := &Server{
		config:      cfg,
		store:       store,
		hub:         NewHub(),
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(),
	}
	s.hub.onDrop = s.metrics.RecordDropped
	if cfg.WebhookURL != "" {
		s.webhook = webhook.New(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookCollections)
		s.webhook.OnResult = s.metrics.RecordWebhook
	}

	// No WriteTimeout: listen streams are long-lived.
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.maintain(ctx)
	if s.webhook != nil {
		s.webhookDone = make(chan struct{})
		go func() {
			defer close(s.webhookDone)
			s.webhook.Run(ctx)
		}()
	}

	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.ListenAddr
	}
	return s.listener.Addr().String()
}

// maintain periodically prunes in-memory buckets and old rate limit events.
func (s *Server) maintain(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("maintenance panic", "panic", r)
		}
	}()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rateLimiter.Cleanup()
			n, err := s.store.CleanupRateLimitEvents(s.config.RateLimitEventRetention)
			if err != nil {
				slog.Error("cleanup rate limit events", "err", err)
			} else if n > 0 {
				slog.Info("cleaned up rate limit events", "count", n)
			}
		}
	}
}

// Shutdown gracefully stops the server and disconnects all listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	// Hijacked websocket connections are not tracked by http.Server.
	s.hub.Close()
	err := s.http.Shutdown(ctx)
	if s.webhookDone != nil {
		select {
		case <-s.webhookDone:
		case <-ctx.Done():
		}
	}
	return err
}

// Handler returns the full middleware-wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Projects
	mux.HandleFunc("GET /v1/projects/{project}", s.requireProjectAuth(serverdb.ScopeAdmin, s.withRateLimit(s.handleGetProject, classRead)))

	// Documents
	const coll = "/v1/projects/{project}/collections/{collection}"
	mux.HandleFunc("POST "+coll+"/documents", s.requireProjectAuth(serverdb.ScopeWrite, s.withRateLimit(s.handleAddDocument, classWrite)))
	mux.HandleFunc("GET "+coll+"/documents", s.requireProjectAuth(serverdb.ScopeRead, s.withRateLimit(s.handleListDocuments, classRead)))
	mux.HandleFunc("GET "+coll+"/documents/{id}", s.requireProjectAuth(serverdb.ScopeRead, s.withRateLimit(s.handleGetDocument, classRead)))
	mux.HandleFunc("PUT "+coll+"/documents/{id}", s.requireProjectAuth(serverdb.ScopeWrite, s.withRateLimit(s.handleSetDocument, classWrite)))
	mux.HandleFunc("DELETE "+coll+"/documents/{id}", s.requireProjectAuth(serverdb.ScopeWrite, s.withRateLimit(s.handleDeleteDocument, classWrite)))

	// Change stream
	mux.HandleFunc("GET "+coll+"/listen", s.requireProjectAuth(serverdb.ScopeRead, s.withRateLimit(s.handleListen, classListen)))

	return chain(mux,
		recoveryMiddleware,
		requestIDMiddleware,
		loggerMiddleware,
		metricsMiddleware(s.metrics),
		loggingMiddleware,
		corsMiddleware(s.config.CORSAllowedOrigins),
		maxBytesMiddleware(s.config.MaxBodyBytes),
		ipRateLimitMiddleware(s.rateLimiter, s.config.RateLimitIP, s.store),
	)
}

// handleHealth returns a health check response, pinging the server DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "dialect": s.store.Dialect()})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
