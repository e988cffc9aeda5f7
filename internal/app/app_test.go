package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/blobstore"
	"github.com/conduit-lang/contentschema/internal/cli/config"
	"github.com/conduit-lang/contentschema/internal/orm/codegen"
	"github.com/conduit-lang/contentschema/internal/orm/engine"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/transaction"
)

func sqliteConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite3", URL: ":memory:"},
		Cache:    config.CacheConfig{Backend: "memory", Prefix: "test:"},
		Engine:   config.EngineConfig{GenericTableAuthoritative: true, History: true},
	}
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, sqliteConfig(), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, codegen.SQLite, a.Store.Dialect())
	assert.IsType(t, &blobstore.Memory{}, a.Blobs)

	runner := a.Migrator()
	require.NoError(t, runner.Initialize(ctx))
	n, err := runner.MigrateUp(ctx, a.Migrations())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	article := schema.NewObjectType(0, "article")
	require.NoError(t, article.AddAttribute(&schema.AttributeType{Name: "title", Kind: schema.KindShortText, Optimized: true}))

	err = a.Tx.WithTransaction(ctx, func(tx *transaction.Transaction) error {
		_, err := a.Engine.SaveObjectType(ctx, tx, article, engine.TypeOptions{SaveAttributes: true, ForceStructureChange: true})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, article.TypeID)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.MutationsTotal.WithLabelValues("save_object_type", "ok")))
	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestOpen_RedisCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := sqliteConfig()
	cfg.Cache.Backend = "redis"
	cfg.Cache.Redis.Addr = mr.Addr()
	cfg.Blobs.Root = t.TempDir()

	a, err := Open(ctx, cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &blobstore.FileSystem{}, a.Blobs)

	runner := a.Migrator()
	require.NoError(t, runner.Initialize(ctx))
	_, err = runner.MigrateUp(ctx, a.Migrations())
	require.NoError(t, err)

	exists, err := a.Store.TableExists(ctx, a.DB, "attribute_nodeversion")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NotEmpty(t, mr.Keys(), "column lookups must be cached in redis")
}

func TestOpen_Failures(t *testing.T) {
	ctx := context.Background()

	cfg := sqliteConfig()
	cfg.Cache.Backend = "redis"
	cfg.Cache.Redis.Addr = "127.0.0.1:1"
	_, err := Open(ctx, cfg, WithLogger(zap.NewNop()))
	assert.Error(t, err, "unreachable redis")

	cfg = sqliteConfig()
	cfg.Database.Driver = "nosuchdriver"
	_, err = Open(ctx, cfg, WithLogger(zap.NewNop()))
	assert.Error(t, err)

	cfg = sqliteConfig()
	cfg.Log.Level = "loud"
	_, err = Open(ctx, cfg)
	assert.Error(t, err, "invalid log level")
}
