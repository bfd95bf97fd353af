// ABOUTME: YAML file-backed key-value store for session persistence.
// ABOUTME: Rewrites the whole map through a temp file and rename so batches land atomically.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileKV stores all keys in a single YAML document.
type FileKV struct {
	path string
	mu   sync.Mutex
}

// NewFileKV creates a file store at path. The file is created on first write.
func NewFileKV(path string) (*FileKV, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path is required")
	}
	return &FileKV{path: path}, nil
}

// Get returns the value for key.
func (s *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

// Apply writes the batch with a single atomic file replacement.
func (s *FileKV) Apply(_ context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	for _, key := range b.Delete {
		delete(data, key)
	}
	for key, value := range b.Set {
		data[key] = value
	}
	return s.write(data)
}

// Close releases any resources held by the store.
func (s *FileKV) Close() error {
	return nil
}

func (s *FileKV) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	data := map[string]string{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if data == nil {
		data = map[string]string{}
	}
	return data, nil
}

func (s *FileKV) write(data map[string]string) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".kv-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return os.Rename(tmpName, s.path)
}
