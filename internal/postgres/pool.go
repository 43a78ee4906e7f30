package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions tunes NewPool. The zero value is usable.
type PoolOptions struct {
	// MaxConns overrides the pool size from the URL when positive.
	MaxConns int32
	// SlowQuery logs successful queries at warn level once they take this long.
	SlowQuery time.Duration
	// Observer receives one callback per finished query.
	Observer QueryObserver
}

// NewPool parses databaseURL, installs the otelpgx tracer wrapped with query
// logging, and returns a connected pool.
func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.ConnConfig.Tracer = newQueryTracer(
		otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName()),
		opts.Observer,
		opts.SlowQuery,
	)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	return pool, nil
}
