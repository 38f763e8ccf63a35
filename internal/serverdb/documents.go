package serverdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/streamzone/sz/internal/cloud"
)

// Document is one stored JSON object
type Document struct {
	ProjectID  string
	Collection string
	ID         string
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

// AddDocument stores data under a new server-generated ID
func (db *ServerDB) AddDocument(projectID, collection string, data map[string]any) (*Document, error) {
	if err := checkPath(projectID, collection, "x"); err != nil {
		return nil, err
	}
	raw, err := encodeData(data)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	// retry once on an ID collision
	for attempt := 0; ; attempt++ {
		id := cloud.NewID()
		_, err = db.exec(
			`INSERT INTO documents (project_id, collection, id, data, create_time, update_time) VALUES (?, ?, ?, ?, ?, ?)`,
			projectID, collection, id, raw, formatTime(now), formatTime(now),
		)
		if err == nil {
			return &Document{ProjectID: projectID, Collection: collection, ID: id, Data: data, CreateTime: now, UpdateTime: now}, nil
		}
		if attempt > 0 {
			return nil, fmt.Errorf("insert document: %w", err)
		}
	}
}

// SetDocument creates or replaces the document with the given ID.
// created reports whether the document did not exist before.
func (db *ServerDB) SetDocument(projectID, collection, id string, data map[string]any) (doc *Document, created bool, err error) {
	if err := checkPath(projectID, collection, id); err != nil {
		return nil, false, err
	}
	raw, err := encodeData(data)
	if err != nil {
		return nil, false, err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	doc = &Document{ProjectID: projectID, Collection: collection, ID: id, Data: data, CreateTime: now, UpdateTime: now}

	var createTime string
	err = tx.QueryRow(db.rebind(`SELECT create_time FROM documents WHERE project_id = ? AND collection = ? AND id = ?`),
		projectID, collection, id).Scan(&createTime)
	switch {
	case err == sql.ErrNoRows:
		created = true
		_, err = tx.Exec(db.rebind(`INSERT INTO documents (project_id, collection, id, data, create_time, update_time) VALUES (?, ?, ?, ?, ?, ?)`),
			projectID, collection, id, raw, formatTime(now), formatTime(now))
	case err == nil:
		doc.CreateTime = parseTime(createTime)
		_, err = tx.Exec(db.rebind(`UPDATE documents SET data = ?, update_time = ? WHERE project_id = ? AND collection = ? AND id = ?`),
			raw, formatTime(now), projectID, collection, id)
	}
	if err != nil {
		return nil, false, fmt.Errorf("set document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return doc, created, nil
}

// GetDocument returns one document, or nil if it does not exist
func (db *ServerDB) GetDocument(projectID, collection, id string) (*Document, error) {
	doc, err := scanDocument(db.queryRow(
		`SELECT project_id, collection, id, data, create_time, update_time FROM documents WHERE project_id = ? AND collection = ? AND id = ?`,
		projectID, collection, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns every document in a collection, oldest first
func (db *ServerDB) ListDocuments(projectID, collection string) ([]*Document, error) {
	rows, err := db.query(
		`SELECT project_id, collection, id, data, create_time, update_time FROM documents WHERE project_id = ? AND collection = ? ORDER BY create_time, id`,
		projectID, collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// WhereDocuments returns documents whose top-level field equals value.
// Both sides are compared in their JSON form, so 3 matches 3.0.
func (db *ServerDB) WhereDocuments(projectID, collection, field string, value any) ([]*Document, error) {
	want, err := normalizeJSON(value)
	if err != nil {
		return nil, fmt.Errorf("where value: %w", err)
	}
	all, err := db.ListDocuments(projectID, collection)
	if err != nil {
		return nil, err
	}
	out := []*Document{}
	for _, doc := range all {
		got, ok := doc.Data[field]
		if ok && reflect.DeepEqual(got, want) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// DeleteDocument removes a document and reports whether it existed
func (db *ServerDB) DeleteDocument(projectID, collection, id string) (bool, error) {
	res, err := db.exec(`DELETE FROM documents WHERE project_id = ? AND collection = ? AND id = ?`, projectID, collection, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CountDocuments returns the number of documents in a project
func (db *ServerDB) CountDocuments(projectID string) (int, error) {
	var n int
	if err := db.queryRow(`SELECT COUNT(*) FROM documents WHERE project_id = ?`, projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func checkPath(projectID, collection, id string) error {
	for _, s := range []string{projectID, collection, id} {
		if !ValidName(s) {
			return fmt.Errorf("%w: %q", ErrInvalidName, s)
		}
	}
	return nil
}

func encodeData(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

// normalizeJSON round-trips v so it compares equal to decoded document fields
func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc                    Document
		raw                    string
		createTime, updateTime string
	)
	if err := row.Scan(&doc.ProjectID, &doc.Collection, &doc.ID, &raw, &createTime, &updateTime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &doc.Data); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	doc.CreateTime = parseTime(createTime)
	doc.UpdateTime = parseTime(updateTime)
	return &doc, nil
}
