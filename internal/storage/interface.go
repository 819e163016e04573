package storage

import (
	"context"
	"io"
)

// ObjectStorage is the blob store behind the thumbnail archive.
type ObjectStorage interface {
	// Upload writes an object under key, overwriting any previous content.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Exists reports whether an object is already stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL resolves key to its externally reachable address, or empty when
	// the store has no public endpoint.
	URL(key string) string
}
