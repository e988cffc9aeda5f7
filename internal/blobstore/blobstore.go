// Package blobstore holds attribute values kept outside the generic attribute
// table. Blobs are addressed by a slash-separated relative path.
package blobstore

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/zeebo/errs"
)

// Error is the error class of blob store failures
var Error = errs.Class("blobstore")

// ErrNotFound is returned when no blob exists at a path
var ErrNotFound = errors.New("blob not found")

// Store reads and writes blobs
type Store interface {
	// Put writes a blob, replacing any blob at the same path
	Put(ctx context.Context, path string, data []byte) error
	// Get reads a blob, or returns an error matching ErrNotFound
	Get(ctx context.Context, path string) ([]byte, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, path string) error
}

// cleanPath validates a relative blob path
func cleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", Error.New("invalid path %q", p)
	}
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." {
		return "", Error.New("invalid path %q", p)
	}
	return cleaned, nil
}
