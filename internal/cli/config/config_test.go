package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(oldWd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONTENTSCHEMA_DATABASE_URL", "postgres://localhost/content")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/content", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Engine.GenericTableAuthoritative)
	assert.True(t, cfg.Engine.History)
	assert.False(t, cfg.Engine.ForceStructureChange)
	assert.Equal(t, 255, cfg.Engine.IndexKeyLength)
	assert.Zero(t, cfg.Engine.TransactionTimeout)
}

func TestLoad_MissingURL(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	content := `
database:
  driver: sqlite3
  url: file:content.db
  max_open_conns: 1
blobs:
  root: /var/lib/contentschema/blobs
cache:
  backend: redis
  ttl: 30s
  redis:
    addr: redis:6379
    db: 2
log:
  level: debug
  encoding: json
engine:
  force_structure_change: true
  history: false
  index_key_length: 100
  transaction_timeout: 2m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contentschema.yaml"), []byte(content), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "file:content.db", cfg.Database.URL)
	assert.Equal(t, 1, cfg.Database.MaxOpenConns)
	assert.Equal(t, "/var/lib/contentschema/blobs", cfg.Blobs.Root)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Encoding)
	assert.True(t, cfg.Engine.ForceStructureChange)
	assert.False(t, cfg.Engine.History)
	assert.Equal(t, 100, cfg.Engine.IndexKeyLength)
	assert.Equal(t, 2*time.Minute, cfg.Engine.TransactionTimeout)
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  url: postgres://db/content\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/content", cfg.Database.URL)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contentschema.yaml"),
		[]byte("database:\n  url: postgres://file/content\ncache:\n  backend: memory\n"), 0o644))

	t.Setenv("CONTENTSCHEMA_DATABASE_URL", "postgres://env/content")
	t.Setenv("CONTENTSCHEMA_ENGINE_FORCE_STRUCTURE_CHANGE", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/content", cfg.Database.URL)
	assert.True(t, cfg.Engine.ForceStructureChange)
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "pgx", URL: "postgres://localhost/content"},
			Cache:    CacheConfig{Backend: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"negative conns", func(c *Config) { c.Database.MaxOpenConns = -1 }, "max_open_conns"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, "cache.redis.addr"},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Second }, "cache.ttl"},
		{"negative key length", func(c *Config) { c.Engine.IndexKeyLength = -1 }, "index_key_length"},
		{"negative timeout", func(c *Config) { c.Engine.TransactionTimeout = -time.Second }, "transaction_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
