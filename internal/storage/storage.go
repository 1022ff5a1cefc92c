// Package storage provides object storage abstractions for the CSV file store.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrDownloadFailed     = errors.New("download failed")
	ErrDeleteFailed       = errors.New("delete failed")
)

// ObjectStorage abstracts the store holding the registry, the per-year
// enrollment files and snapshots. Implementations include S3 and the local
// filesystem.
type ObjectStorage interface {
	// Get returns the object's bytes and its current ETag.
	// Returns ErrObjectNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, string, error)

	// Put writes the object unconditionally and returns the new ETag.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// ConditionalPut writes only if the stored object still carries etag.
	// An empty etag means the object must not exist yet.
	// Returns ErrPreconditionFailed when the condition does not hold.
	ConditionalPut(ctx context.Context, key string, data []byte, etag string) (string, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all object keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Fingerprint returns the murmur3 128-bit content hash of data as hex.
// The local backend uses it as ETag and the loader keys its cache on it.
func Fingerprint(data []byte) string {
	h1, h2 := murmur3.Sum128(data)
	return fmt.Sprintf("%016x%016x", h1, h2)
}
