package store

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/cache"
	"github.com/conduit-lang/contentschema/internal/logging"
	"github.com/conduit-lang/contentschema/internal/metrics"
)

// absentMarker is cached for columns and tables known not to exist
const absentMarker = "\x00absent"

// ColumnCache remembers the physical shape of tables: whether a column or
// table exists and the column's reported type. It must be invalidated after
// every structural change.
type ColumnCache struct {
	backend    cache.Cache
	generation atomic.Uint64
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewColumnCache creates a column cache over backend. A nil backend selects
// a private in-memory cache.
func NewColumnCache(backend cache.Cache, logger *zap.Logger, m *metrics.Metrics) *ColumnCache {
	if backend == nil {
		backend = cache.NewMemoryWithConfig(cache.Config{Prefix: cache.DefaultConfig().Prefix, DefaultTTL: -1})
	}
	return &ColumnCache{
		backend: backend,
		logger:  logging.OrNop(logger),
		metrics: m,
	}
}

// Generation increases by one on every invalidation
func (c *ColumnCache) Generation() uint64 {
	return c.generation.Load()
}

// Invalidate clears every cached entry
func (c *ColumnCache) Invalidate(ctx context.Context) {
	c.generation.Add(1)
	c.metrics.CacheInvalidated()
	if err := c.backend.Clear(ctx); err != nil {
		c.logger.Warn("column cache clear failed", zap.Error(err))
	}
}

// Close releases the backend
func (c *ColumnCache) Close() error {
	return c.backend.Close()
}

// lookup returns the cached value of key. A backend failure counts as a miss.
func (c *ColumnCache) lookup(ctx context.Context, key string) (value string, exists, hit bool) {
	b, err := c.backend.Get(ctx, key)
	if err != nil {
		if !cache.IsMiss(err) {
			c.logger.Debug("column cache read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false, false
	}
	if string(b) == absentMarker {
		return "", false, true
	}
	return string(b), true, true
}

// remember stores a lookup result unless an invalidation happened since
// the lookup started
func (c *ColumnCache) remember(ctx context.Context, key string, generation uint64, value string, exists bool) {
	if c.generation.Load() != generation {
		return
	}
	if !exists {
		value = absentMarker
	}
	if err := c.backend.Set(ctx, key, []byte(value), 0); err != nil {
		c.logger.Debug("column cache write failed", zap.String("key", key), zap.Error(err))
	}
}
