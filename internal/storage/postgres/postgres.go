// Package postgres implements the stage cache store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AlanMarvin/polytrak/internal/stagecache"
)

const schema = `
	CREATE TABLE IF NOT EXISTS stage_cache (
		address    TEXT        NOT NULL,
		stage      TEXT        NOT NULL,
		data       BYTEA       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (address, stage)
	);
	CREATE INDEX IF NOT EXISTS stage_cache_updated_at_idx ON stage_cache (updated_at);`

const (
	selectEntry = `SELECT data, updated_at FROM stage_cache WHERE address = $1 AND stage = $2`

	upsertEntry = `
		INSERT INTO stage_cache (address, stage, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address, stage) DO UPDATE SET
			data       = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`

	purgeEntries = `DELETE FROM stage_cache WHERE updated_at < $1`
)

// Store implements stagecache.Store on a pgx connection pool
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies the connection and creates the table
func New(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create stage_cache: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Get returns the cached stage result, or nil when absent
func (s *Store) Get(ctx context.Context, address, stage string) (*stagecache.Entry, error) {
	var e stagecache.Entry
	err := s.pool.QueryRow(ctx, selectEntry, address, stage).Scan(&e.Data, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get stage %s for %s: %w", stage, address, err)
	}
	return &e, nil
}

// Put upserts a stage result
func (s *Store) Put(ctx context.Context, address, stage string, entry stagecache.Entry) error {
	if _, err := s.pool.Exec(ctx, upsertEntry, address, stage, entry.Data, entry.UpdatedAt); err != nil {
		return fmt.Errorf("postgres: put stage %s for %s: %w", stage, address, err)
	}
	return nil
}

// PurgeOlderThan deletes entries not refreshed since cutoff
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, purgeEntries, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge stage_cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the connection pool
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Close shuts down the connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
