package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/contentschema/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. CONTENTSCHEMA_DATABASE_URL
const EnvPrefix = "CONTENTSCHEMA"

// Config represents the contentschema configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Blobs    BlobsConfig    `mapstructure:"blobs"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      logging.Config `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	// Driver is a database/sql driver name: pgx, postgres or sqlite3
	Driver       string `mapstructure:"driver"`
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// BlobsConfig locates the externally stored attribute values
type BlobsConfig struct {
	// Root is the blob directory. Empty keeps blobs in memory.
	Root string `mapstructure:"root"`
}

// CacheConfig configures the column cache backend
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig represents the Redis connection of the redis cache backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EngineConfig sets the schema engine defaults
type EngineConfig struct {
	ForceStructureChange      bool `mapstructure:"force_structure_change"`
	GenericTableAuthoritative bool `mapstructure:"generic_table_authoritative"`
	IndexKeyLength            int  `mapstructure:"index_key_length"`
	// History installs the version history tables on migrate
	History bool `mapstructure:"history"`
	// TransactionTimeout bounds a schema change. Zero retries deadlocks
	// and serialization failures instead.
	TransactionTimeout time.Duration `mapstructure:"transaction_timeout"`
}

// Supported values
var (
	drivers       = []string{"pgx", "postgres", "sqlite3"}
	cacheBackends = []string{"memory", "redis"}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("blobs.root", "")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.prefix", "contentschema:columns:")
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	log := logging.DefaultConfig()
	v.SetDefault("log.level", log.Level)
	v.SetDefault("log.development", log.Development)
	v.SetDefault("log.encoding", log.Encoding)
	v.SetDefault("log.output", log.Output)

	v.SetDefault("engine.force_structure_change", false)
	v.SetDefault("engine.generic_table_authoritative", true)
	v.SetDefault("engine.index_key_length", 255)
	v.SetDefault("engine.history", true)
	v.SetDefault("engine.transaction_timeout", "0s")
}

// Load loads the configuration. An empty path searches the working
// directory for contentschema.yaml; a missing file there is not an error.
// Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("contentschema")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if !contains(drivers, cfg.Database.Driver) {
		return fmt.Errorf("database.driver must be one of %s, got: %s", strings.Join(drivers, ", "), cfg.Database.Driver)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if cfg.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative, got: %d", cfg.Database.MaxOpenConns)
	}
	if !contains(cacheBackends, cfg.Cache.Backend) {
		return fmt.Errorf("cache.backend must be one of %s, got: %s", strings.Join(cacheBackends, ", "), cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required with the redis backend")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got: %s", cfg.Cache.TTL)
	}
	if cfg.Engine.IndexKeyLength < 0 {
		return fmt.Errorf("engine.index_key_length must not be negative, got: %d", cfg.Engine.IndexKeyLength)
	}
	if cfg.Engine.TransactionTimeout < 0 {
		return fmt.Errorf("engine.transaction_timeout must not be negative, got: %s", cfg.Engine.TransactionTimeout)
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
