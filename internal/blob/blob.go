// Package blob stores service images outside the relational store. A
// service row only keeps the blob key.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies a storage backend
type Driver string

const (
	DriverFS Driver = "fs"
	DriverS3 Driver = "s3"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrExists   = errors.New("blob already exists")
)

// Info describes a stored blob
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store is a create-only key/value store for binary objects
type Store interface {
	// Put fails with ErrExists when the key is taken
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// Delete reports whether something was removed
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// Options select and configure a driver
type Options struct {
	Driver    Driver
	Dir       string
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// Open returns the store named by opts.Driver, defaulting to fs
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverFS:
		return NewFS(opts.Dir)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    opts.Bucket,
			Region:    opts.Region,
			Endpoint:  opts.Endpoint,
			PathStyle: opts.PathStyle,
		})
	}
	return nil, fmt.Errorf("unknown blob driver %q", opts.Driver)
}

// ServiceImageKey names the image of a service. The upload time keeps keys
// unique under create-only semantics when an image is replaced.
func ServiceImageKey(serviceID int64, filename string, at time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("services/%d/%d%s", serviceID, at.UnixNano(), ext)
}

// ContentTypeFor guesses an image content type from a file name
func ContentTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}

// sanitizeKey rejects keys that could escape a root directory
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("absolute key %q", key)
	}
	return path.Clean(key), nil
}
