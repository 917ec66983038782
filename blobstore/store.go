package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for durable, named blobs.
//
// Writes are atomic at blob granularity: a blob created through Create
// becomes visible only once the returned writer has been closed without
// error. A half-written blob must never be observable by Open.
type Store interface {
	// Create opens a blob for writing. Closing the writer commits the blob.
	Create(ctx context.Context, name string) (io.WriteCloser, error)

	// Open opens an existing blob for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
