package cloud

import (
	"context"
	"fmt"
)

// Backend names accepted by Open
const (
	BackendHTTP      = "http"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Options selects and configures a backend
type Options struct {
	Backend         string
	URL             string
	Project         string
	APIKey          string
	CredentialsFile string
}

// Open returns the Store named by opts.Backend
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendHTTP, "":
		if opts.URL == "" {
			return nil, fmt.Errorf("cloud url not configured (set cloud.url or SZ_CLOUD_URL)")
		}
		if opts.Project == "" {
			return nil, fmt.Errorf("cloud project not configured (set cloud.project or SZ_CLOUD_PROJECT)")
		}
		return NewHTTPStore(opts.URL, opts.Project, opts.APIKey), nil
	case BackendFirestore:
		if opts.Project == "" {
			return nil, fmt.Errorf("firestore project not configured (set cloud.project or SZ_CLOUD_PROJECT)")
		}
		return NewFirestore(ctx, opts.Project, opts.CredentialsFile)
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown cloud backend %q", opts.Backend)
}
