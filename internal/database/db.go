// Package database is the remote-backed storage adapter: the profile,
// request, and limit ports implemented over Postgres with pgx. Conditional
// updates carry the concurrency contract: only one resolver wins a pending
// request, expiry is a single atomic transition, and the daily cap is an
// increment-with-ceiling.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool against connStr and verifies it with a ping.
func Connect(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	return pool, nil
}

// Store implements the storage ports over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-connected pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
