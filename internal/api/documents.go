package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/streamzone/sz/internal/serverdb"
)

// documentRequest is the JSON body for POST and PUT on documents.
type documentRequest struct {
	Data map[string]any `json:"data"`
}

// documentJSON is the JSON representation of a document.
type documentJSON struct {
	ID         string         `json:"id"`
	Data       map[string]any `json:"data"`
	CreateTime string         `json:"create_time,omitempty"`
	UpdateTime string         `json:"update_time,omitempty"`
}

// documentListResponse is the JSON response for listing documents.
type documentListResponse struct {
	Documents []documentJSON `json:"documents"`
}

func toDocumentJSON(d *serverdb.Document) documentJSON {
	data := d.Data
	if data == nil {
		data = map[string]any{}
	}
	return documentJSON{
		ID:         d.ID,
		Data:       data,
		CreateTime: d.CreateTime.Format(time.RFC3339Nano),
		UpdateTime: d.UpdateTime.Format(time.RFC3339Nano),
	}
}

// collectionPath validates the project and collection path values.
func collectionPath(w http.ResponseWriter, r *http.Request) (project, collection string, ok bool) {
	project, collection = r.PathValue("project"), r.PathValue("collection")
	if !serverdb.ValidName(collection) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid collection name")
		return "", "", false
	}
	return project, collection, true
}

func documentPath(w http.ResponseWriter, r *http.Request) (project, collection, id string, ok bool) {
	project, collection, ok = collectionPath(w, r)
	if !ok {
		return "", "", "", false
	}
	id = r.PathValue("id")
	if !serverdb.ValidName(id) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid document id")
		return "", "", "", false
	}
	return project, collection, id, true
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "document too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return nil, false
	}
	if req.Data == nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "data is required")
		return nil, false
	}
	return req.Data, true
}

// handleAddDocument handles POST /v1/projects/{project}/collections/{collection}/documents.
func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	project, collection, ok := collectionPath(w, r)
	if !ok {
		return
	}
	data, ok := decodeDocument(w, r)
	if !ok {
		return
	}

	doc, err := s.store.AddDocument(project, collection, data)
	if err != nil {
		logFor(r.Context()).Error("add document", "collection", collection, "err", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "failed to store document")
		return
	}
	s.metrics.RecordWrite("add")

	body := toDocumentJSON(doc)
	s.publish(project, changeEvent{Type: changeAdded, Collection: collection, Doc: body})
	writeJSON(w, http.StatusCreated, body)
}

// handleSetDocument handles PUT .../documents/{id}.
func (s *Server) handleSetDocument(w http.ResponseWriter, r *http.Request) {
	project, collection, id, ok := documentPath(w, r)
	if !ok {
		return
	}
	data, ok := decodeDocument(w, r)
	if !ok {
		return
	}

	doc, created, err := s.store.SetDocument(project, collection, id, data)
	if err != nil {
		logFor(r.Context()).Error("set document", "collection", collection, "id", id, "err", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "failed to store document")
		return
	}
	s.metrics.RecordWrite("set")

	body := toDocumentJSON(doc)
	changeType, status := changeModified, http.StatusOK
	if created {
		changeType, status = changeAdded, http.StatusCreated
	}
	s.publish(project, changeEvent{Type: changeType, Collection: collection, Doc: body})
	writeJSON(w, status, body)
}

// handleGetDocument handles GET .../documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	project, collection, id, ok := documentPath(w, r)
	if !ok {
		return
	}
	s.metrics.RecordRead()

	doc, err := s.store.GetDocument(project, collection, id)
	if err != nil {
		logFor(r.Context()).Error("get document", "collection", collection, "id", id, "err", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "failed to read document")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, toDocumentJSON(doc))
}

// handleListDocuments handles GET .../documents, optionally filtered with
// ?where=<field>&eq=<json value>.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	project, collection, ok := collectionPath(w, r)
	if !ok {
		return
	}
	s.metrics.RecordRead()

	var (
		docs []*serverdb.Document
		err  error
	)
	q := r.URL.Query()
	if field := q.Get("where"); field != "" {
		if !q.Has("eq") {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidQuery, "where requires eq")
			return
		}
		var value any
		if jerr := json.Unmarshal([]byte(q.Get("eq")), &value); jerr != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidQuery, "eq must be a JSON value")
			return
		}
		docs, err = s.store.WhereDocuments(project, collection, field, value)
	} else {
		docs, err = s.store.ListDocuments(project, collection)
	}
	if err != nil {
		logFor(r.Context()).Error("list documents", "collection", collection, "err", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "failed to list documents")
		return
	}

	resp := documentListResponse{Documents: make([]documentJSON, 0, len(docs))}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, toDocumentJSON(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteDocument handles DELETE .../documents/{id}. Deleting a
// missing document succeeds.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	project, collection, id, ok := documentPath(w, r)
	if !ok {
		return
	}

	existed, err := s.store.DeleteDocument(project, collection, id)
	if err != nil {
		logFor(r.Context()).Error("delete document", "collection", collection, "id", id, "err", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "failed to delete document")
		return
	}
	if existed {
		s.metrics.RecordWrite("delete")
		s.publish(project, changeEvent{Type: changeRemoved, Collection: collection, Doc: documentJSON{ID: id, Data: map[string]any{}}})
	}
	w.WriteHeader(http.StatusNoContent)
}
