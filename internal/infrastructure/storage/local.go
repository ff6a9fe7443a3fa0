package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

// LocalStorage implements StorageAdapter using the local filesystem, for
// dev and on-prem deployments that don't have S3-compatible storage.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local filesystem storage adapter.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// WriteJSON marshals and writes data as JSON.
func (s *LocalStorage) WriteJSON(ctx context.Context, path string, v interface{}) error {
	fullPath := filepath.Join(s.basePath, path)

	// Ensure parent directory exists
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(fullPath, data, 0644)
}
