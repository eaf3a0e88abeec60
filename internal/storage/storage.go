// Package storage abstracts where optimized transforms and their variants
// are persisted. Backends are deliberately small: keys are slash-separated
// paths relative to the backend root (or bucket prefix for S3).
package storage

import (
	"context"
	"errors"
	"fmt"

	"imagemill/internal/config"
)

// ErrNotFound is returned by Stat when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Object describes a stored object.
type Object struct {
	Key  string
	Size int64
}

// Backend persists pipeline outputs.
type Backend interface {
	// Put uploads the local file to key, replacing any existing object.
	Put(ctx context.Context, key, localPath, contentType string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Stat returns object metadata, or ErrNotFound.
	Stat(ctx context.Context, key string) (Object, error)
	// List returns the keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// URL renders a browsable location for key, for logs and reports.
	URL(key string) string
}

// New builds the backend selected by the configuration.
func New(cfg *config.Config) (Backend, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendLocal:
		return NewLocal(cfg.Storage.Local.Root)
	case config.StorageBackendS3:
		return NewS3(cfg.Storage.S3)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
}
