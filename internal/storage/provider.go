// Package storage defines the object store the sitemap index is published to.
// Implementations live in the s3, gcs, local and memory subpackages; NoOpStore serves
// the "none" provider.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrCredentials marks failures caused by missing, incomplete or rejected credentials.
// Callers treat it as a configuration problem rather than a job failure.
var ErrCredentials = errors.New("storage credentials missing or invalid")

// BlobStore uploads a single object and returns a URI describing where it landed.
type BlobStore interface {
	PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
}

// NoOpStore accepts every upload and stores nothing. It backs the "none" provider used for dry runs.
type NoOpStore struct{}

// PutObject drains r and returns a noop:// URI.
func (NoOpStore) PutObject(_ context.Context, key string, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return "noop://" + key, nil
}
