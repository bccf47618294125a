package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"practiceapi/internal/config"
	"practiceapi/internal/retry"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// timeLayout keeps a fixed width so stored instants compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type DB struct {
	*sql.DB
	logger  zerolog.Logger
	txRetry retry.Policy
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	return Open(config.DatabaseConfig{Path: path}, logger)
}

func Open(cfg config.DatabaseConfig, logger *zerolog.Logger) (*DB, error) {
	path := cfg.Path
	inMemory := path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	// immediate transactions take the write lock at BEGIN, so a read-check-write
	// sequence cannot interleave with another writer.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_foreign_keys=on", path, busy)

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "database").Logger()
	}

	db := &DB{
		DB:     sqlDB,
		logger: l,
		txRetry: retry.Policy{
			MaxRetries:   cfg.TxRetry.MaxRetries,
			InitialDelay: cfg.TxRetry.InitialDelay,
			MaxDelay:     cfg.TxRetry.MaxDelay,
		},
	}
	if db.txRetry.MaxRetries == 0 {
		db.txRetry.MaxRetries = 3
	}
	if db.txRetry.InitialDelay == 0 {
		db.txRetry.InitialDelay = 20 * time.Millisecond
	}

	if err := db.createTables(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	db.logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
            name TEXT PRIMARY KEY,
            email TEXT NOT NULL DEFAULT '',
            avatar TEXT NOT NULL DEFAULT '',
            credits INTEGER NOT NULL CHECK (credits >= 0),
            venue_manager BOOLEAN NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS venues (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            price REAL NOT NULL DEFAULT 0,
            max_guests INTEGER NOT NULL CHECK (max_guests >= 1),
            owner_name TEXT NOT NULL,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            venue_id INTEGER NOT NULL REFERENCES venues(id) ON DELETE CASCADE,
            customer_name TEXT NOT NULL,
            date_from TEXT NOT NULL,
            date_to TEXT NOT NULL,
            guests INTEGER NOT NULL CHECK (guests >= 1),
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL,
            CHECK (date_from < date_to)
        )`,
		`CREATE TABLE IF NOT EXISTS listings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            seller_name TEXT NOT NULL,
            ends_at TEXT NOT NULL,
            winner_name TEXT,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bids (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            listing_id INTEGER NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
            bidder_name TEXT NOT NULL,
            amount INTEGER NOT NULL CHECK (amount > 0),
            created_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            entity_id INTEGER NOT NULL,
            payload TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_venues_owner ON venues(owner_name)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_venue_dates ON bookings(venue_id, date_from, date_to)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_name)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_ends_at ON listings(ends_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bids_listing ON bids(listing_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bids_bidder ON bids(bidder_name)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// withTx runs fn in one immediate transaction and commits it. Busy/locked errors
// retry the whole transaction; any other error rolls it back and is returned as is.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retry.Do(ctx, db.txRetry, isBusy, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return strings.Contains(err.Error(), "database is locked")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func utcNow() time.Time {
	return time.Now().UTC()
}
