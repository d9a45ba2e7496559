// Package storage defines the backend a drop keeps its content in.
//
// A Backend is addressed by key (see [Key]). Content is appended by the
// producer while the drop is being written and made durable by Commit when
// the drop completes. The lifecycle manager only ever needs Exists and
// Delete; Read is used to copy content into replicas.
//
// Two implementations are provided:
//
//   - [FileBackend] keeps one file per drop under a root directory.
//   - [ObjectBackend] stages appends in memory and uploads the whole object
//     to an [objectstore.Store] on Commit, optionally compressed with a
//     [Codec].
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
)

var (
	// ErrNotFound is returned by Read when the content does not exist.
	ErrNotFound = errors.New("storage: content not found")

	// ErrInvalidKey is returned for ids and keys that do not name a single
	// location under the backend.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Backend stores the content of drops.
//
// Implementations must be safe for concurrent use across keys. Calls for a
// single key are serialized by the owning drop.
type Backend interface {
	// Append adds p to the content stored under key, creating it if needed.
	Append(ctx context.Context, key string, p []byte) error

	// Commit makes the appended content durable and visible to Exists and Read.
	// Committing a key that was never appended to stores empty content.
	Commit(ctx context.Context, key string) error

	// Exists reports whether committed content is present under key.
	// A missing key is (false, nil); an error means the check itself failed.
	Exists(ctx context.Context, key string) (bool, error)

	// Read returns the committed content under key.
	// Returns ErrNotFound if there is none.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content under key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error
}

// ValidateID reports whether id can be used as one segment of a Key.
// Empty ids and the dot segments "." and ".." are rejected because they
// survive escaping and would resolve outside the drop's own location.
func ValidateID(id string) error {
	switch id {
	case "", ".", "..":
		return fmt.Errorf("%w: id %q", ErrInvalidKey, id)
	}
	return nil
}

// Key builds the storage key of a drop copy from its logical and physical ids.
// Both ids are path-escaped so that a separator inside either stays in its
// own segment. Ids must pass ValidateID.
func Key(oid, uid string) string {
	return url.PathEscape(oid) + "/" + url.PathEscape(uid)
}
