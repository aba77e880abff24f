package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Local stores objects as files under a base directory.
// Thread-safe for concurrent operations.
type Local struct {
	basePath string
	mu       sync.RWMutex
}

var _ Store = (*Local)(nil)

// NewLocal creates a store rooted at basePath, creating the directory if needed.
func NewLocal(basePath string) (*Local, error) {
	if basePath == "" {
		return nil, errors.New("base path cannot be empty")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create object directory: %w", err)
	}
	return &Local{basePath: basePath}, nil
}

// Put writes data to a file, creating parent directories.
func (s *Local) Put(_ context.Context, p string, data []byte, _ string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("object data cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	full := s.filePath(clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // objects are public assets
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write object: %w", err)
	}
	return clean, nil
}

// Get reads an object.
func (s *Local) Get(_ context.Context, p string) ([]byte, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.filePath(clean))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", clean, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Delete removes an object.
func (s *Local) Delete(_ context.Context, p string) error {
	clean, err := CleanPath(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filePath(clean)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Path returns the filesystem path of an object.
func (s *Local) Path(p string) string {
	return s.filePath(p)
}

func (s *Local) filePath(p string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(p))
}
