// Package storage writes uploaded blobs to local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LocalStorage stores files under a base directory, prefixing each name with
// a timestamp so concurrent uploads of the same filename never collide.
type LocalStorage struct {
	dir   string
	clock func() time.Time
}

// LocalStorageConfig configures the on-disk store.
type LocalStorageConfig struct {
	Dir   string
	Clock func() time.Time
}

// NewLocalStorage ensures the base directory exists and returns the store.
func NewLocalStorage(cfg LocalStorageConfig) (*LocalStorage, error) {
	if cfg.Dir == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &LocalStorage{dir: cfg.Dir, clock: clock}, nil
}

// Dir returns the base directory, for static file serving.
func (s *LocalStorage) Dir() string {
	return s.dir
}

// Save streams the reader to disk and returns the generated filename.
func (s *LocalStorage) Save(reader io.Reader, filename string) (string, error) {
	generated := strconv.FormatInt(s.clock().UnixMilli(), 10) + filepath.Base(filename)
	path := filepath.Join(s.dir, generated)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write file: %w", err)
	}
	return generated, nil
}
