package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore is a Store backed by Google Cloud Firestore. The client honors
// FIRESTORE_EMULATOR_HOST, which is how local runs and CI reach an emulator.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore connects to a Firestore project. credentialsFile may be
// empty to use application default credentials.
func NewFirestore(ctx context.Context, projectID, credentialsFile string) (*Firestore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Firestore{client: client}, nil
}

// mapErr converts gRPC status codes to the package sentinels
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case codes.Unauthenticated:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case codes.PermissionDenied:
		return fmt.Errorf("%s: %w", op, ErrForbidden)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (f *Firestore) Add(ctx context.Context, collection string, doc Document) (string, error) {
	ref, _, err := f.client.Collection(collection).Add(ctx, map[string]any(doc))
	if err != nil {
		return "", mapErr("add "+collection, err)
	}
	return ref.ID, nil
}

func (f *Firestore) Set(ctx context.Context, collection, id string, doc Document) error {
	_, err := f.client.Collection(collection).Doc(id).Set(ctx, map[string]any(doc))
	return mapErr("set "+collection+"/"+id, err)
}

func (f *Firestore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapErr("get "+collection+"/"+id, err)
	}
	return &Snapshot{ID: snap.Ref.ID, Data: Document(snap.Data())}, nil
}

func (f *Firestore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	docs, err := f.client.Collection(collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, mapErr("list "+collection, err)
	}
	return toSnapshots(docs), nil
}

func (f *Firestore) Where(ctx context.Context, collection, field string, value any) ([]Snapshot, error) {
	docs, err := f.client.Collection(collection).Where(field, "==", value).Documents(ctx).GetAll()
	if err != nil {
		return nil, mapErr("query "+collection, err)
	}
	return toSnapshots(docs), nil
}

func (f *Firestore) Delete(ctx context.Context, collection, id string) error {
	_, err := f.client.Collection(collection).Doc(id).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return mapErr("delete "+collection+"/"+id, err)
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

// Watch streams collection changes from a Firestore snapshot listener. The
// first snapshot reports every existing document as added.
func (f *Firestore) Watch(ctx context.Context, collection string) (<-chan Change, error) {
	it := f.client.Collection(collection).Snapshots(ctx)
	ch := make(chan Change, 16)
	go func() {
		defer close(ch)
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				if !errors.Is(err, iterator.Done) && ctx.Err() == nil && status.Code(err) != codes.Canceled {
					slog.Warn("firestore listener stopped", "collection", collection, "err", err)
				}
				return
			}
			for _, dc := range qs.Changes {
				change := Change{
					Type:       changeType(dc.Kind),
					Collection: collection,
					Doc:        Snapshot{ID: dc.Doc.Ref.ID, Data: Document(dc.Doc.Data())},
				}
				select {
				case ch <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func changeType(k firestore.DocumentChangeKind) ChangeType {
	switch k {
	case firestore.DocumentAdded:
		return ChangeAdded
	case firestore.DocumentRemoved:
		return ChangeRemoved
	}
	return ChangeModified
}

func toSnapshots(docs []*firestore.DocumentSnapshot) []Snapshot {
	out := make([]Snapshot, 0, len(docs))
	for _, d := range docs {
		out = append(out, Snapshot{ID: d.Ref.ID, Data: Document(d.Data())})
	}
	return out
}

var (
	_ Store   = (*Firestore)(nil)
	_ Watcher = (*Firestore)(nil)
)
