// Package cache provides the key/value backends behind the column cache of a
// store handle: an in-process map for single-node use and Redis for fleets
// sharing one store.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is a byte-valued cache backend
type Cache interface {
	// Get returns the value of key, or an error matching ErrMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A zero ttl selects the backend default; a negative
	// ttl stores the value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value
	Delete(ctx context.Context, key string) error

	// Clear removes every value under the backend's prefix
	Clear(ctx context.Context) error

	// Close releases the backend's resources
	Close() error
}

// Config holds the settings common to every backend
type Config struct {
	// DefaultTTL applies when Set is called with a zero ttl
	DefaultTTL time.Duration
	// Prefix namespaces every key
	Prefix string
}

// DefaultConfig returns the default backend settings
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 10 * time.Minute,
		Prefix:     "contentschema:columns:",
	}
}

// ErrMiss is returned when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// MissError names the key that missed
type MissError struct {
	Key string
}

func (e *MissError) Error() string {
	return "cache miss: " + e.Key
}

// Is matches ErrMiss
func (e *MissError) Is(target error) bool {
	return target == ErrMiss
}

// IsMiss checks if an error is a cache miss
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}
