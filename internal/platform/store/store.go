// Package store provides the Postgres client used by the issue repositories
package store

import (
	"context"

	"civicpulse/internal/platform/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queryer is the minimal query surface repositories bind to.
// Both *pgxpool.Pool and pgx.Tx satisfy it
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config configures the Postgres pool
type Config struct {
	URL      string
	MaxConns int32
}

// Store owns the pgx pool
type Store struct {
	Pool *pgxpool.Pool
}

// Open creates the pool and verifies connectivity
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Named("store").Info().Int32("max_conns", pcfg.MaxConns).Msg("postgres pool up")
	return &Store{Pool: pool}, nil
}

// Close closes the pool
func (s *Store) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}
