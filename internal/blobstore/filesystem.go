package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSystem stores blobs as files below a root directory
type FileSystem struct {
	root string
}

// NewFileSystem creates a file system store, creating root when missing
func NewFileSystem(root string) (*FileSystem, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, Error.New("create root %s: %v", root, err)
	}
	return &FileSystem{root: root}, nil
}

// Root returns the root directory
func (fs *FileSystem) Root() string {
	return fs.root
}

func (fs *FileSystem) resolve(p string) (string, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.root, filepath.FromSlash(cleaned)), nil
}

// Put writes a blob through a temp file and a rename, so readers never see
// a partial blob
func (fs *FileSystem) Put(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := fs.resolve(p)
	if err != nil {
		return err
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Error.Wrap(err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return Error.New("create temp file: %v", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Error.New("write %s: %v", p, err)
	}
	if err := tmp.Close(); err != nil {
		return Error.New("close temp file: %v", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return Error.New("rename temp file: %v", err)
	}

	success = true
	return nil
}

// Get reads a blob
func (fs *FileSystem) Get(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := fs.resolve(p)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(src)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return data, nil
}

// Delete removes a blob
func (fs *FileSystem) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := fs.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return Error.Wrap(err)
	}
	return nil
}
