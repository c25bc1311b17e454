package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NewPostgresPool connects to Postgres, waiting up to attempts seconds for it to come up,
// and applies the schema
func NewPostgresPool(ctx context.Context, dsn string, attempts int, logger *zap.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	for i := 0; i < attempts; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		logger.Info("⏳ Waiting for database...", zap.Int("attempt", i+1), zap.Int("of", attempts))
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, err)
	}

	if err := MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("✅ Connected to Postgres with connection pool")
	return pool, nil
}

// MigratePostgres creates the schema if it does not exist
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, postgresSchema)
	return err
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users_profiles (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS telegram_accounts (
	chat_id BIGINT PRIMARY KEY,
	profile_id UUID NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS product_stocks (
	id UUID PRIMARY KEY,
	number TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('incoming', 'package', 'moving', 'extradition', 'warehouse', 'completed', 'cancel', 'error')),
	profile_id UUID NOT NULL,
	destination_id UUID,
	fixed_by UUID,
	fixed_at TIMESTAMPTZ,
	delivery_name TEXT NOT NULL DEFAULT '',
	comment TEXT NOT NULL DEFAULT '',
	modified_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS product_stock_lines (
	stock_id UUID NOT NULL REFERENCES product_stocks(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	product_id UUID NOT NULL,
	product_name TEXT NOT NULL,
	offer_name TEXT NOT NULL DEFAULT '',
	offer_value TEXT NOT NULL DEFAULT '',
	offer_postfix TEXT NOT NULL DEFAULT '',
	variation_name TEXT NOT NULL DEFAULT '',
	variation_value TEXT NOT NULL DEFAULT '',
	variation_postfix TEXT NOT NULL DEFAULT '',
	modification_name TEXT NOT NULL DEFAULT '',
	modification_value TEXT NOT NULL DEFAULT '',
	modification_postfix TEXT NOT NULL DEFAULT '',
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	PRIMARY KEY (stock_id, position)
);

CREATE TABLE IF NOT EXISTS product_stock_totals (
	profile_id UUID NOT NULL,
	product_id UUID NOT NULL,
	offer_value TEXT NOT NULL DEFAULT '',
	variation_value TEXT NOT NULL DEFAULT '',
	modification_value TEXT NOT NULL DEFAULT '',
	storage TEXT NOT NULL,
	total INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (profile_id, product_id, offer_value, variation_value, modification_value, storage)
);

CREATE INDEX IF NOT EXISTS idx_product_stocks_queue ON product_stocks(profile_id, status, modified_at);
CREATE INDEX IF NOT EXISTS idx_product_stocks_fixed ON product_stocks(fixed_by, fixed_at);
CREATE INDEX IF NOT EXISTS idx_telegram_accounts_profile ON telegram_accounts(profile_id);
`
