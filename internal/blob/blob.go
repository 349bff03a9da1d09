// Package blob stores uploaded files, for example profile images, on local disk.
//
// Keys returned by Upload are relative paths ("avatars/<uuid>.png") and are
// served by fronting infrastructure under Config.BaseURL.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidKey is returned for keys or categories leaving the store root.
	ErrInvalidKey = errors.New("blob key is invalid")
)

// Config implements the blob store config.
type Config struct {
	// Path is the root directory of the store.
	Path string `toml:"path"`

	// BaseURL is the public prefix image keys are resolved against.
	BaseURL string `toml:"baseURL"`
}

// Store is a local disk blob store.
type Store struct {
	root string
}

// NewStore creates the root directory if needed and returns the store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("blob store path can not be empty")
	}

	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob store root: %w", err)
	}

	return &Store{root: cfg.Path}, nil
}

// Upload stores the content of r under a fresh key in the given category.
// The key keeps the extension of the original file name.
func (s *Store) Upload(_ context.Context, category, name string, r io.Reader) (string, error) {
	if !validSegment(category) {
		return "", ErrInvalidKey
	}

	key := filepath.Join(category, uuid.NewString()+strings.ToLower(filepath.Ext(name)))

	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create blob category directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(s.root, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create blob file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())

		return "", fmt.Errorf("failed to write blob file: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close blob file: %w", err)
	}

	return filepath.ToSlash(key), nil
}

// Remove deletes the blob stored under key.
// Removing an already absent key is not an error.
func (s *Store) Remove(_ context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove blob %s: %w", key, err)
	}

	return nil
}

// resolve maps a key to an absolute path below the store root.
func (s *Store) resolve(key string) (string, error) {
	if key == "" || filepath.IsAbs(key) {
		return "", ErrInvalidKey
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))

	// reject keys escaping the root via ".."
	if rel, err := filepath.Rel(s.root, path); err != nil || strings.HasPrefix(rel, "..") {
		return "", ErrInvalidKey
	}

	return path, nil
}

// validSegment rejects empty or path traversing category names.
func validSegment(segment string) bool {
	if segment == "" {
		return false
	}

	return !strings.ContainsAny(segment, `/\`) && segment != "." && segment != ".."
}
