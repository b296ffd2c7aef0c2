package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/blockboard/blockboard/pkg/persist"
	"github.com/blockboard/blockboard/pkg/store"
)

// Config is the serve command's configuration, loaded from a TOML file.
type Config struct {
	Listen           string      `toml:"listen"`
	DebounceWindowMS int         `toml:"debounce_window_ms"`
	Tolerance        int         `toml:"tolerance"`
	Store            StoreConfig `toml:"store"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend string      `toml:"backend"` // memory, redis, or mongo
	Redis   RedisConfig `toml:"redis"`
	Mongo   MongoConfig `toml:"mongo"`
}

// RedisConfig holds redis backend settings.
type RedisConfig struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

// MongoConfig holds mongo backend settings.
type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// defaultConfig returns the configuration used when no file is given.
func defaultConfig() Config {
	return Config{
		Listen:    ":8080",
		Tolerance: 1,
		Store:     StoreConfig{Backend: "memory"},
	}
}

// loadConfig reads a TOML config file, layering it over the defaults.
// An empty path returns the defaults unchanged.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// window returns the configured debounce window, or the coordinator
// default when the file does not set one.
func (c Config) window() time.Duration {
	if c.DebounceWindowMS <= 0 {
		return persist.DefaultWindow
	}
	return time.Duration(c.DebounceWindowMS) * time.Millisecond
}

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemory(), nil
	case "redis":
		return store.NewRedis(ctx, store.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	case "mongo":
		return store.NewMongo(ctx, store.MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q (expected memory, redis, or mongo)", cfg.Backend)
	}
}
