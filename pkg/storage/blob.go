package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Open for a key that holds no blob
var ErrNotFound = errors.New("blob not found")

// BlobStore stores task attachment contents by key
type BlobStore interface {
	// Save writes r under key and returns the number of bytes written
	Save(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	// Open returns the blob stored under key, or ErrNotFound
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// HealthCheck reports whether the backend is reachable
	HealthCheck(ctx context.Context) error
}

// NewKey returns a fresh storage key for an attachment of a task. The
// original file extension is kept; the rest of the name is not used.
func NewKey(orgID, taskID int64, fileName string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(fileName, "\\", "/"))))
	if len(ext) > 16 || strings.ContainsAny(ext, " /") {
		ext = ""
	}
	return fmt.Sprintf("orgs/%d/tasks/%d/%s%s", orgID, taskID, uuid.NewString(), ext)
}

// validKey rejects keys that are empty, absolute, or escape the store root
func validKey(key string) error {
	if key == "" {
		return errors.New("empty blob key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid blob key: %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid blob key: %q", key)
		}
	}
	return nil
}
