// Package postgres persists takedown cases, their submissions and the
// audit trail. Case mutation and audit append share one transaction, so
// the repositories here are built around an explicit Tx helper.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// pq is the PostgreSQL driver for database/sql
	_ "github.com/lib/pq"
)

// healthCheckTimeout bounds the liveness ping so a wedged pool cannot
// stall the /health endpoint past the probe interval.
const healthCheckTimeout = 5 * time.Second

// Config holds database configuration.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	ConnectTimeout  time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns the takedown service defaults. The pool is kept
// small: case transitions hold short row-level transactions and the
// scheduler adds only a handful of concurrent sweep workers.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "takedown",
		Password:        "",
		Database:        "takedown",
		SSLMode:         "disable",
		ConnectTimeout:  10 * time.Second,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// ConnectionString returns the PostgreSQL connection string.
func (c *Config) ConnectionString() string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
	if c.ConnectTimeout > 0 {
		dsn += fmt.Sprintf("&connect_timeout=%d", int(c.ConnectTimeout.Seconds()))
	}
	return dsn
}

// DB wraps the case-store connection pool.
type DB struct {
	*sql.DB
	config *Config
}

// New creates a new database connection pool.
func New(cfg *Config) (*DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := ping(db); err != nil {
		return nil, err
	}
	return &DB{DB: db, config: cfg}, nil
}

// NewFromDSN creates a new database connection from a DSN string.
func NewFromDSN(dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ping(db); err != nil {
		return nil, err
	}
	return &DB{DB: db}, nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// WrapDB wraps an existing connection pool. Tests use it with sqlmock.
func WrapDB(db *sql.DB) *DB {
	return &DB{DB: db}
}

// RunMigrations runs all database migrations.
func (d *DB) RunMigrations(ctx context.Context) error {
	return RunMigrations(ctx, d.DB)
}

// Tx represents a database transaction.
type Tx struct {
	*sql.Tx
}

// BeginTx starts a new transaction with context.
func (d *DB) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{Tx: tx}, nil
}

// WithTx executes a function within a transaction.
// If the function returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
func (d *DB) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := d.BeginTx(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %w, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// HealthCheck reports whether the case store is reachable. The ping is
// bounded by healthCheckTimeout regardless of the caller's context.
func (d *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := d.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (d *DB) Close() error {
	if err := d.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
