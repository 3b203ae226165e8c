// Package blob abstracts the byte storage backing uploaded files. File
// metadata lives in the database; a Store only ever sees opaque keys.
package blob

import (
	"context"
	"io"
)

// Store persists and retrieves file contents under generated storage keys.
type Store interface {
	// Save streams r into the backend and returns the storage key the
	// content was written under. name is the client-supplied file name;
	// implementations may use its extension when generating the key.
	Save(ctx context.Context, name string, r io.Reader) (key string, size int64, err error)

	// Open returns a reader over the content stored under key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Unlink removes the content stored under key. Removing a key that
	// does not exist is not an error.
	Unlink(ctx context.Context, key string) error

	// Exists reports whether content is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Size reports the length in bytes of the content stored under key.
	Size(ctx context.Context, key string) (int64, error)
}
