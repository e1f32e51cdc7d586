package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/STRATINT/eventcatalog/internal/ingestion"
)

// ErrSchemaNotReady is returned by HealthCheck when migrations are missing
// or a previous migration failed halfway.
var ErrSchemaNotReady = errors.New("catalog schema not ready")

// Config holds database connection configuration.
type Config struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	// ConnectTimeout bounds each ping while waiting for the server.
	ConnectTimeout time.Duration
	// ConnectRetry controls how long Connect keeps waiting for a server
	// that is still starting.
	ConnectRetry ingestion.RetryPolicy
}

// DefaultConfig returns the pool settings used by the catalog services.
func DefaultConfig() Config {
	return Config{
		MaxConnections:     20,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    30 * time.Minute,
		ConnectTimeout:     5 * time.Second,
		ConnectRetry: ingestion.RetryPolicy{
			MaxRetries:     5,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			BackoffFactor:  2,
			Jitter:         true,
		},
	}
}

// Connect opens the catalog database and waits until it answers.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := waitReady(ctx, db, cfg); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func waitReady(ctx context.Context, db *sql.DB, cfg Config) error {
	err := ingestion.Retry(ctx, cfg.ConnectRetry, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return ingestion.NewRetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// HealthCheck verifies the database answers and the schema is fully
// migrated.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		version int64
		dirty   bool
	)
	err := db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: no migrations applied", ErrSchemaNotReady)
	}
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w: migration %d is dirty", ErrSchemaNotReady, version)
	}
	return nil
}
