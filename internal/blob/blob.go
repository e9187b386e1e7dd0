// Package blob abstracts the image byte store. Keys are opaque strings;
// staged uploads carry an upload- prefix until a post claims them.
package blob

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when a key has no stored bytes.
var ErrNotFound = errors.New("blob not found")

// Store holds uploaded image bytes addressed by a string key.
type Store interface {
	// Save writes the content under key, replacing any previous bytes.
	Save(key, contentType string, content io.Reader) error
	// Rename moves the bytes stored under oldKey to newKey.
	Rename(oldKey, newKey string) error
	// Delete removes the bytes stored under key.
	Delete(key string) error
	// Open returns the stored bytes and their modification time.
	Open(key string) (io.ReadCloser, time.Time, error)
}

const stagedPrefix = "upload-"

// NewStagedKey produces a fresh temporary key preserving the original
// filename's extension.
func NewStagedKey(originalName string) (string, error) {
	bytes := make([]byte, 12)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate blob key: %w", err)
	}
	ext := strings.ToLower(path.Ext(originalName))
	return stagedPrefix + hex.EncodeToString(bytes) + ext, nil
}

// IsStaged reports whether key still carries the temporary upload prefix.
func IsStaged(key string) bool {
	return strings.HasPrefix(key, stagedPrefix)
}

// PostKey derives the permanent key pairing a blob with its owning post.
func PostKey(postID, stagedKey string) string {
	return postID + strings.ToLower(path.Ext(stagedKey))
}

// CleanKey strips path separators so a key can never escape the store root.
func CleanKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.ReplaceAll(key, "\\", "/")
	return path.Base(key)
}
