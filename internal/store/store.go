package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgxpool.Pool with all broker persistence operations:
// providers, tools, config values, bearer tokens, and the audit log.
//
// Obtain one with [Open]; all methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres, verifies connectivity with a ping, and runs
// [Migrate] before returning.
func Open(ctx context.Context, dsn string, toolEmbeddingTable string, embeddingDimensions int) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, toolEmbeddingTable, embeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying connection pool for components (health
// checks, the admin CLI) that need raw access.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
