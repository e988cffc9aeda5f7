package blobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory keeps blobs in a map. It backs tests and dry runs.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty memory store
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Put writes a blob
func (m *Memory) Put(ctx context.Context, p string, data []byte) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.blobs[cleaned] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

// Get reads a blob
func (m *Memory) Get(ctx context.Context, p string) ([]byte, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.blobs[cleaned]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Delete removes a blob
func (m *Memory) Delete(ctx context.Context, p string) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.blobs, cleaned)
	m.mu.Unlock()
	return nil
}

// Paths lists the stored paths in order
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.blobs))
	for p := range m.blobs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
