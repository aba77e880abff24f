// Package objectstore stores binary objects (submitted covers, rendered
// passports) by slash-separated path.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned for a missing object.
var ErrNotFound = errors.New("object not found")

// Store is an object storage backend.
type Store interface {
	// Put writes data at p and returns the stored path.
	Put(ctx context.Context, p string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, p string) ([]byte, error)
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, p string) error
}

// CleanPath validates an object path: relative, slash-separated, no dot segments.
func CleanPath(p string) (string, error) {
	if p == "" {
		return "", errors.New("object path cannot be empty")
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return "", fmt.Errorf("invalid object path %q", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("invalid object path %q", p)
		}
	}
	return path.Clean(p), nil
}
