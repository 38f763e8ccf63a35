package api

import (
	"net/http"
	"time"

	"github.com/streamzone/sz/internal/serverdb"
)

// ProjectResponse is the JSON representation of a project.
type ProjectResponse struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	CreatedAt string        `json:"created_at"`
	Documents int           `json:"documents"`
	Listeners int           `json:"listeners"`
	Keys      []KeyResponse `json:"keys"`
}

// KeyResponse describes an API key without its secret.
type KeyResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Prefix     string  `json:"prefix"`
	Scopes     string  `json:"scopes"`
	ExpiresAt  *string `json:"expires_at,omitempty"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func toKeyResponse(k *serverdb.APIKey) KeyResponse {
	return KeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		Prefix:     k.KeyPrefix,
		Scopes:     k.Scopes,
		ExpiresAt:  formatOptionalTime(k.ExpiresAt),
		LastUsedAt: formatOptionalTime(k.LastUsedAt),
		CreatedAt:  k.CreatedAt.Format(time.RFC3339),
	}
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// handleGetProject handles GET /v1/projects/{project} (admin scope).
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("project")

	p, err := s.store.GetProject(id, false)
	if err != nil {
		logFor(r.Context()).Error("get project", "err", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "failed to get project")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "project not found")
		return
	}

	count, err := s.store.CountDocuments(id)
	if err != nil {
		logFor(r.Context()).Error("count documents", "err", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "failed to count documents")
		return
	}
	keys, err := s.store.ListAPIKeys(id)
	if err != nil {
		logFor(r.Context()).Error("list api keys", "err", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "failed to list keys")
		return
	}

	resp := ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		Documents: count,
		Listeners: s.hub.CountProject(id),
		Keys:      make([]KeyResponse, 0, len(keys)),
	}
	for _, k := range keys {
		resp.Keys = append(resp.Keys, toKeyResponse(k))
	}
	writeJSON(w, http.StatusOK, resp)
}
