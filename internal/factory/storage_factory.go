package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/adapters/cache"
	"github.com/devscan/linkguard/internal/adapters/store"
	"github.com/devscan/linkguard/internal/config"
	"github.com/devscan/linkguard/internal/core"
)

// Storage bundles the tiered cache and the link store, which share a
// database handle when a SQL backend is configured.
type Storage struct {
	Cache *cache.Tiered
	Store core.LinkStore
}

// NewStorage builds the cache and store based on configuration.
func NewStorage(cfg *config.Config, logger *zap.Logger) (*Storage, error) {
	cacheCfg := cfg.GetCache()
	opts := cache.TieredOptions{
		FastTTL:        cacheCfg.FastTTL,
		EntryTTL:       cacheCfg.EntryTTL,
		SweepFrequency: cacheCfg.SweepFrequency,
	}
	storeEnabled := cfg.GetBool("store.enabled")

	switch cacheCfg.Type {
	case "memory":
		tiered := cache.NewTiered(nil, opts, logger)
		var linkStore core.LinkStore
		if storeEnabled {
			linkStore = store.NewMemoryStore(logger)
		}
		return &Storage{Cache: tiered, Store: linkStore}, nil

	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cacheCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		backend, err := cache.NewSQLiteCache(cacheCfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		var linkStore core.LinkStore
		if storeEnabled {
			linkStore, err = store.NewSQLStore(backend.DB(), "sqlite3", logger)
			if err != nil {
				return nil, err
			}
		}
		return &Storage{Cache: cache.NewTiered(backend, opts, logger), Store: linkStore}, nil

	case "mysql":
		backend, err := cache.NewMySQLCache(cacheCfg.MySQLDSN, logger)
		if err != nil {
			// Durable store down at startup: run on the in-process
			// fallback instead of refusing to start.
			logger.Warn("MySQL cache unavailable at startup, using memory fallback",
				zap.Error(err))
			tiered := cache.NewTiered(nil, opts, logger)
			var linkStore core.LinkStore
			if storeEnabled {
				linkStore = store.NewMemoryStore(logger)
			}
			return &Storage{Cache: tiered, Store: linkStore}, nil
		}
		var linkStore core.LinkStore
		if storeEnabled {
			linkStore, err = store.NewSQLStore(backend.DB(), "mysql", logger)
			if err != nil {
				return nil, err
			}
		}
		return &Storage{Cache: cache.NewTiered(backend, opts, logger), Store: linkStore}, nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheCfg.Type)
	}
}
