// Package memory keeps uploaded objects in process memory. Tests and dry runs use it.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Object is a stored upload.
type Object struct {
	ContentType string
	Data        []byte
}

// BlobStore stores objects in-memory and returns memory:// URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	// Err, when set, is returned from every PutObject call.
	Err error
}

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// PutObject persists a copy of the content under key.
func (s *BlobStore) PutObject(_ context.Context, key string, contentType string, r io.Reader) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = Object{ContentType: contentType, Data: data}
	return fmt.Sprintf("memory://%s", key), nil
}

// Get returns the object stored under key.
func (s *BlobStore) Get(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}
