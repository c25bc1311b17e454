package repository

import (
	"context"
	"fmt"

	"products-stocks-telegram/internal/cache"
	"products-stocks-telegram/internal/config"
	"products-stocks-telegram/internal/database"

	"go.uber.org/zap"
)

// Open builds the Store selected by cfg.DBDriver, wrapped with the cache when enabled
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	var store Store

	switch cfg.DBDriver {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, 30, logger)
		if err != nil {
			return nil, err
		}
		store = NewPostgresStore(pool)
	case "sqlite", "":
		db, err := database.NewSingleWriterDB(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		store = NewSQLiteStore(db, logger)
	case "memory":
		store = NewInMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	if !cfg.UseCache {
		return store, nil
	}

	c := cache.NewCache(ctx, cache.Options{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)

	return NewCachedStore(store, c, cache.TTL(cfg.CacheTTL), cache.TTL(cfg.ClaimantTTL), logger), nil
}
