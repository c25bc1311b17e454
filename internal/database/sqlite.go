package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SingleWriterDB serialises writes to SQLite through one mutex; reads go straight to the pool
type SingleWriterDB struct {
	db     *sql.DB
	logger *zap.Logger
	mu     sync.Mutex
}

// NewSingleWriterDB opens (and creates if needed) the SQLite database at path and applies the schema
func NewSingleWriterDB(path string, logger *zap.Logger) (*SingleWriterDB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	swdb := &SingleWriterDB{
		db:     db,
		logger: logger,
	}

	if err := swdb.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("SQLite database ready", zap.String("path", path))

	return swdb, nil
}

// Migrate creates the schema if it does not exist
func (swdb *SingleWriterDB) Migrate(ctx context.Context) error {
	swdb.mu.Lock()
	defer swdb.mu.Unlock()

	_, err := swdb.db.ExecContext(ctx, sqliteSchema)
	return err
}

// Exec runs a write statement while holding the writer lock
func (swdb *SingleWriterDB) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	swdb.mu.Lock()
	defer swdb.mu.Unlock()

	return swdb.db.ExecContext(ctx, query, args...)
}

// WithTx runs fn inside a transaction while holding the writer lock
func (swdb *SingleWriterDB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	swdb.mu.Lock()
	defer swdb.mu.Unlock()

	tx, err := swdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// QueryRow executes a query that returns a single row
func (swdb *SingleWriterDB) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return swdb.db.QueryRowContext(ctx, query, args...)
}

// Query executes a query that returns rows
func (swdb *SingleWriterDB) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return swdb.db.QueryContext(ctx, query, args...)
}

// Ping checks the database connection
func (swdb *SingleWriterDB) Ping(ctx context.Context) error {
	return swdb.db.PingContext(ctx)
}

// Close closes the database connection
func (swdb *SingleWriterDB) Close() error {
	return swdb.db.Close()
}

const sqliteSchema = `
-- Warehouse and operator profiles
CREATE TABLE IF NOT EXISTS users_profiles (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL
);

-- Chat accounts bound to an operator profile
CREATE TABLE IF NOT EXISTS telegram_accounts (
	chat_id INTEGER PRIMARY KEY,
	profile_id TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	CHECK(active IN (0, 1))
);

-- Stock requests; fixed_by is the claim
CREATE TABLE IF NOT EXISTS product_stocks (
	id TEXT PRIMARY KEY,
	number TEXT NOT NULL,
	status TEXT NOT NULL,
	profile_id TEXT NOT NULL,
	destination_id TEXT,
	fixed_by TEXT,
	fixed_at TEXT,
	delivery_name TEXT NOT NULL DEFAULT '',
	comment TEXT NOT NULL DEFAULT '',
	modified_at TEXT NOT NULL,
	CHECK(status IN ('incoming', 'package', 'moving', 'extradition', 'warehouse', 'completed', 'cancel', 'error'))
);

CREATE TABLE IF NOT EXISTS product_stock_lines (
	stock_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	product_id TEXT NOT NULL,
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
	quantity INTEGER NOT NULL,
	PRIMARY KEY (stock_id, position),
	FOREIGN KEY (stock_id) REFERENCES product_stocks(id) ON DELETE CASCADE,
	CHECK(quantity > 0)
);

-- Units on hand per storage place of a warehouse profile
CREATE TABLE IF NOT EXISTS product_stock_totals (
	profile_id TEXT NOT NULL,
	product_id TEXT NOT NULL,
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
