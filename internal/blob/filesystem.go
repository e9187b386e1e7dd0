package blob

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FilesystemStore keeps blobs as files under a single directory.
type FilesystemStore struct {
	dir string
}

// NewFilesystemStore creates the backing directory when absent.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("images dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	return &FilesystemStore{dir: dir}, nil
}

func (s *FilesystemStore) path(key string) string {
	return filepath.Join(s.dir, CleanKey(key))
}

// Save writes content to a temp file in the same directory and renames it
// into place so readers never observe a partial blob.
func (s *FilesystemStore) Save(key, contentType string, content io.Reader) error {
	tmp, err := os.CreateTemp(s.dir, "pending-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp blob: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store blob %s: %w", key, err)
	}
	return nil
}

// Rename moves a blob to its new key, replacing any existing target.
func (s *FilesystemStore) Rename(oldKey, newKey string) error {
	target := s.path(newKey)
	_ = os.Remove(target)
	if err := os.Rename(s.path(oldKey), target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("rename blob %s: %w", oldKey, err)
	}
	return nil
}

// Delete removes a blob. A missing key reports ErrNotFound.
func (s *FilesystemStore) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// Open returns the blob file for streaming.
func (s *FilesystemStore) Open(key string) (io.ReadCloser, time.Time, error) {
	file, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("open blob %s: %w", key, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, time.Time{}, fmt.Errorf("stat blob %s: %w", key, err)
	}
	return file, info.ModTime(), nil
}

var _ Store = (*FilesystemStore)(nil)
