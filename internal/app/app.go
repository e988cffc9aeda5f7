// Package app wires the configuration to a running schema engine: database
// driver, dialect, column cache backend, blob store and metrics.
package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/blobstore"
	"github.com/conduit-lang/contentschema/internal/cache"
	"github.com/conduit-lang/contentschema/internal/cli/config"
	"github.com/conduit-lang/contentschema/internal/logging"
	"github.com/conduit-lang/contentschema/internal/metrics"
	"github.com/conduit-lang/contentschema/internal/orm/engine"
	"github.com/conduit-lang/contentschema/internal/orm/migrate"
	"github.com/conduit-lang/contentschema/internal/orm/store"
	"github.com/conduit-lang/contentschema/internal/orm/transaction"
)

// App holds the wired components. Close releases them.
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Store    *store.Store
	Engine   *engine.Engine
	Blobs    blobstore.Store
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Tx       *transaction.Manager

	cache cache.Cache
}

// Option configures Open
type Option func(*options)

type options struct {
	logger *zap.Logger
	blobs  blobstore.Store
}

// WithLogger uses logger instead of building one from the configuration
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBlobStore uses blobs instead of the configured blob store
func WithBlobStore(blobs blobstore.Store) Option {
	return func(o *options) { o.blobs = blobs }
}

// Open connects to the configured database and builds the engine
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		if logger, err = logging.New(cfg.Log); err != nil {
			return nil, err
		}
	}

	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			err = errs.Combine(err, a.Close())
		}
	}()

	a.DB, err = sql.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Database.Driver == "sqlite3" {
		// one writer; an in-memory database also lives on a single connection
		a.DB.SetMaxOpenConns(1)
	} else if cfg.Database.MaxOpenConns > 0 {
		a.DB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if err = a.DB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	product, err := store.DetectProduct(ctx, a.DB)
	if err != nil {
		return nil, err
	}

	a.cache, err = openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	a.Metrics = metrics.New(a.Registry)
	a.Store, err = store.New(product,
		store.WithLogger(logger),
		store.WithMetrics(a.Metrics),
		store.WithColumnCache(store.NewColumnCache(a.cache, logger, a.Metrics)),
		store.WithIndexKeyLength(cfg.Engine.IndexKeyLength),
	)
	if err != nil {
		return nil, err
	}

	a.Blobs = o.blobs
	if a.Blobs == nil {
		if cfg.Blobs.Root == "" {
			a.Blobs = blobstore.NewMemory()
		} else if a.Blobs, err = blobstore.NewFileSystem(cfg.Blobs.Root); err != nil {
			return nil, err
		}
	}

	a.Engine = engine.New(a.Store, a.Blobs, engine.WithGenericTableAuthoritative(cfg.Engine.GenericTableAuthoritative))
	a.Tx = transaction.NewManager(a.DB, logger)

	logger.Info("opened content store",
		zap.String("product", product),
		zap.String("dialect", a.Store.Dialect().String()),
		zap.String("cache", cfg.Cache.Backend))
	return a, nil
}

func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	settings := cache.Config{Prefix: cfg.Prefix, DefaultTTL: cfg.TTL}
	switch cfg.Backend {
	case "redis":
		return cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Cache:    settings,
		})
	default:
		return cache.NewMemoryWithConfig(settings), nil
	}
}

// Migrations returns the base migrations of the store's dialect
func (a *App) Migrations() []*migrate.Migration {
	return migrate.BaseMigrations(a.Store.Dialect(), a.Config.Engine.History)
}

// Migrator returns a runner over the app's database
func (a *App) Migrator() *migrate.Runner {
	return migrate.NewRunner(a.DB, a.Store)
}

// Close releases the cache backend and the database
func (a *App) Close() error {
	var group errs.Group
	if a.cache != nil {
		group.Add(a.cache.Close())
	}
	if a.DB != nil {
		group.Add(a.DB.Close())
	}
	_ = a.Logger.Sync()
	return group.Err()
}
