// Package database provides the Postgres connection pool behind the
// progress store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/cooneycw/nhl-api-sub002/config"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

// DB wraps a pooled sqlx connection with logging and metrics. It exposes
// the context-aware subset of sqlx the repositories need, so tests can
// substitute a mock.
type DB struct {
	conn    *sqlx.DB
	cfg     *config.DatabaseConfig
	logger  types.Logger
	metrics types.Metrics
}

// New opens a Postgres connection pool, configures it from cfg and
// verifies connectivity with a ping.
func New(cfg *config.DatabaseConfig, logger types.Logger, metrics types.Metrics) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	ctx := context.Background()
	logger.Info(ctx, "connecting to postgres", types.Fields{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"database": cfg.Database,
	})

	conn, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info(ctx, "connected to postgres", nil)
	metrics.RecordSuccess("database_connect")

	return &DB{
		conn:    conn,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// ExecContext runs a statement that returns no rows.
func (d *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := d.conn.ExecContext(ctx, query, args...)
	d.record(ctx, "exec", start, err)
	return result, err
}

// GetContext runs a query expected to return exactly one row and scans it
// into dest.
func (d *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := d.conn.GetContext(ctx, dest, query, args...)
	// sql.ErrNoRows is an expected outcome for lookups, not a failure.
	if err == sql.ErrNoRows {
		d.metrics.RecordDuration("database_get", time.Since(start).Seconds())
		return err
	}
	d.record(ctx, "get", start, err)
	return err
}

// SelectContext runs a query returning many rows and scans them into
// dest.
func (d *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := d.conn.SelectContext(ctx, dest, query, args...)
	d.record(ctx, "select", start, err)
	return err
}

// Ping verifies the connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (d *DB) Close() error {
	d.logger.Info(context.Background(), "closing postgres connection", nil)
	return d.conn.Close()
}

func (d *DB) record(ctx context.Context, operation string, start time.Time, err error) {
	d.metrics.RecordDuration("database_"+operation, time.Since(start).Seconds())
	if err != nil {
		d.metrics.RecordError("database_"+operation, "query_error")
		d.logger.Error(ctx, "database operation failed", err, types.Fields{
			"operation": operation,
		})
	}
}
