// Package local implements a local filesystem blob store.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where objects will be stored.
	BaseDir string
	// Bucket, when set, becomes a subdirectory of BaseDir so the layout mirrors the remote store.
	Bucket string
}

// BlobStore writes objects to the local filesystem.
type BlobStore struct {
	root string
}

// New creates a new local filesystem-backed blob store.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	root := cfg.BaseDir
	if bucket := strings.TrimSpace(cfg.Bucket); bucket != "" {
		if strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
			return nil, fmt.Errorf("invalid bucket name %q", bucket)
		}
		root = filepath.Join(cfg.BaseDir, bucket)
		if err := os.MkdirAll(root, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create bucket directory: %w", err)
		}
	}

	return &BlobStore{root: root}, nil
}

// PutObject writes the content next to its final name and renames it into place,
// so readers never observe a partially written index. Returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, key string, _ string, r io.Reader) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("path is required")
	}

	fullPath := filepath.Join(s.root, key)
	cleanRoot := filepath.Clean(s.root)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	return fmt.Sprintf("file://%s", fullPath), nil
}
