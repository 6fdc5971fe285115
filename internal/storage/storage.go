// Package storage defines the blob store used for compressed artifacts.
// Both backends share one load-bearing rule: Delete on a missing key is
// a nil-error no-op, which is what makes the cleanup/download races safe
// without locks.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a stored blob as seen by the orphan sweep
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

type Store interface {
	// Write stores the blob under key. A failed write may leave a partial
	// object behind; callers are expected to Delete the key afterwards.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Open returns a reader over the blob. Missing keys map to apperr.NotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns the stored size of the blob
	Stat(ctx context.Context, key string) (int64, error)

	// Delete removes the blob if present. Deleting an absent key returns nil.
	Delete(ctx context.Context, key string) error

	// List enumerates all stored blobs
	List(ctx context.Context) ([]ObjectInfo, error)
}
