// Package cloud accesses the remote document store that StreamZone mirrors
// its local rows into. A store holds named collections of schemaless
// documents keyed by server-assigned IDs.
package cloud

import (
	"context"
	"errors"

	"github.com/streamzone/sz/internal/models"
)

// Sentinel errors shared by every backend
var (
	ErrNotFound     = errors.New("document not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrUnavailable  = errors.New("cloud store unavailable")
)

// Collection names. These and the document field names are the whole wire
// format; they are not versioned.
const (
	CollUsers           = "usuarios"
	CollRoles           = "roles"
	CollPermissions     = "permissions"
	CollRolePermissions = "role_permissions"
	CollUserRoles       = "user_roles"
	CollCategories      = "categories"
	CollServices        = "services"
	CollOffers          = "offers"
	CollPurchases       = "purchases"
	CollNotifications   = "notifications"
)

var kindCollections = map[models.Kind]string{
	models.KindUser:           CollUsers,
	models.KindRole:           CollRoles,
	models.KindPermission:     CollPermissions,
	models.KindRolePermission: CollRolePermissions,
	models.KindUserRole:       CollUserRoles,
	models.KindCategory:       CollCategories,
	models.KindService:        CollServices,
	models.KindOffer:          CollOffers,
	models.KindPurchase:       CollPurchases,
	models.KindNotification:   CollNotifications,
}

// CollectionFor returns the remote collection a kind is mirrored into
func CollectionFor(kind models.Kind) string {
	return kindCollections[kind]
}

// Document is the field map of a remote document
type Document map[string]any

// Snapshot is a document read back from the store
type Snapshot struct {
	ID   string   `json:"id"`
	Data Document `json:"data"`
}

// Store is a remote document database
type Store interface {
	// Add creates a document with a server-generated ID and returns the ID
	Add(ctx context.Context, collection string, doc Document) (string, error)
	// Set creates or replaces the document with the given ID
	Set(ctx context.Context, collection, id string, doc Document) error
	// Get returns one document or ErrNotFound
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	// List returns every document in a collection
	List(ctx context.Context, collection string) ([]Snapshot, error)
	// Where returns documents whose field equals value
	Where(ctx context.Context, collection, field string, value any) ([]Snapshot, error)
	// Delete removes a document; deleting a missing document is not an error
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

// ChangeType is the kind of a collection change
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one document change delivered to a watcher
type Change struct {
	Type       ChangeType `json:"type"`
	Collection string     `json:"collection"`
	Doc        Snapshot   `json:"doc"`
}

// Watcher is implemented by stores that can stream collection changes.
// The channel closes when ctx is done or the stream fails.
type Watcher interface {
	Watch(ctx context.Context, collection string) (<-chan Change, error)
}

func cloneDoc(d Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
