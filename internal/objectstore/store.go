// Package objectstore defines the Store interface for S3-compatible storage.
//
// Object-backed drops keep their committed content here. The interface is
// the subset of S3 semantics the lifecycle core relies on: whole-object
// writes, reads, existence checks via Head, and idempotent deletes.
//
// # Usage
//
//	store, err := s3.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.Put(ctx, "drops/oid-a/uid-a1", reader, size, "application/octet-stream")
//
//	if _, err := store.Head(ctx, key); errors.Is(err, objectstore.ErrNotFound) {
//	    // the copy is gone
//	}
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Common errors returned by Store implementations.
var (
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrAccessDenied is returned when the credentials lack permission for the operation.
	ErrAccessDenied = errors.New("access denied")

	// ErrClosed is returned by any operation on a closed store.
	ErrClosed = errors.New("store closed")
)

// ObjectError wraps an error with the object key for context.
type ObjectError struct {
	Op  string // Operation that failed (e.g., "Put", "Get", "Delete")
	Key string // Object key
	Err error  // Underlying error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("objectstore: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// ObjectMeta contains metadata about an object.
type ObjectMeta struct {
	// Key is the object's key (path) in the bucket.
	Key string

	// Size is the object's size in bytes.
	Size int64

	// ContentType is the MIME type of the object.
	ContentType string

	// ETag is the entity tag, typically an MD5 hash of the object content.
	ETag string

	// LastModified is the Unix timestamp (milliseconds) when the object was last modified.
	LastModified int64

	// Metadata contains user-defined key-value metadata.
	Metadata map[string]string
}

// Store is the interface for object storage operations.
//
// All methods accept a context for cancellation and deadline propagation.
// Implementations should return wrapped errors using [ObjectError] where appropriate.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// Put stores an object at the given key, replacing any previous content.
	//
	// The reader is consumed until EOF or error. The size parameter must match
	// the total bytes that will be read.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Get retrieves an entire object. The caller must close the returned ReadCloser.
	//
	//   - ErrNotFound: object doesn't exist
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Head retrieves object metadata without the body.
	//
	//   - ErrNotFound: object doesn't exist
	Head(ctx context.Context, key string) (ObjectMeta, error)

	// Delete removes an object.
	//
	// Delete is idempotent: deleting a non-existent object succeeds silently.
	Delete(ctx context.Context, key string) error

	// List returns objects matching the given prefix in lexicographic key order.
	List(ctx context.Context, prefix string) ([]ObjectMeta, error)

	// Close releases resources associated with the store.
	Close() error
}

// IsNotFound reports whether err indicates a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
