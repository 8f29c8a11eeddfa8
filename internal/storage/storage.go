// Package storage persists businesses, products and the append-only price log.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/pricebot/internal/service"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Storage implements the entity store and the latest-price resolver over database/sql.
type Storage struct {
	db      *sql.DB
	now     func() time.Time
	dialect Dialect
}

// Option customizes a Storage.
type Option func(*Storage)

// WithClock overrides the clock used for created_at and price age.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		s.now = now
	}
}

// PostgresOptions configures the PostgreSQL connection pool.
type PostgresOptions struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStorage opens (creating if needed) a SQLite database file.
func NewSQLiteStorage(dbPath string, opts ...Option) (*Storage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewWithDB(db, DialectSQLite, opts...), nil
}

// NewPostgresStorage connects to a PostgreSQL server.
func NewPostgresStorage(ctx context.Context, pgOpts PostgresOptions, opts ...Option) (*Storage, error) {
	if err := validateString(pgOpts.DSN, "dsn"); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", pgOpts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if pgOpts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pgOpts.MaxOpenConns)
	}
	if pgOpts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pgOpts.MaxIdleConns)
	}
	if pgOpts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pgOpts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewWithDB(db, DialectPostgres, opts...), nil
}

// NewWithDB wraps an already opened database handle.
func NewWithDB(db *sql.DB, dialect Dialect, opts ...Option) *Storage {
	s := &Storage{
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dialect reports the SQL flavour in use.
func (s *Storage) Dialect() Dialect {
	return s.dialect
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q rebinds a query for the active dialect.
func (s *Storage) q(query string) string {
	return s.dialect.rebind(query)
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ service.Storage = (*Storage)(nil)
