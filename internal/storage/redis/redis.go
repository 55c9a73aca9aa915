// Package redis implements the stage cache store on Redis via go-redis/v9.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/AlanMarvin/polytrak/internal/stagecache"
)

// Retention bounds how long Redis keeps an entry. Freshness is decided by
// the stage cache TTL; this only keeps abandoned wallets from piling up.
const Retention = 24 * time.Hour

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Store implements stagecache.Store.
//
// Key schema:
//
//	stagecache:{address}:{stage} - msgpack-encoded entry
type Store struct {
	rdb *redis.Client
}

type record struct {
	Data      []byte `msgpack:"d"`
	UpdatedAt int64  `msgpack:"u"` // unix milliseconds
}

// New creates a Store, pinging Redis to verify connectivity
func New(ctx context.Context, cfg ClientConfig) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Store{rdb: rdb}, nil
}

func entryKey(address, stage string) string { return "stagecache:" + address + ":" + stage }

// Get returns the cached stage result, or nil when absent
func (s *Store) Get(ctx context.Context, address, stage string) (*stagecache.Entry, error) {
	raw, err := s.rdb.Get(ctx, entryKey(address, stage)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: get stage %s for %s: %w", stage, address, err)
	}
	e, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("redis: decode stage %s for %s: %w", stage, address, err)
	}
	return e, nil
}

// Put stores a stage result, replacing any previous one
func (s *Store) Put(ctx context.Context, address, stage string, entry stagecache.Entry) error {
	raw, err := encode(entry)
	if err != nil {
		return fmt.Errorf("redis: encode stage %s for %s: %w", stage, address, err)
	}
	if err := s.rdb.Set(ctx, entryKey(address, stage), raw, Retention).Err(); err != nil {
		return fmt.Errorf("redis: put stage %s for %s: %w", stage, address, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func encode(e stagecache.Entry) ([]byte, error) {
	return msgpack.Marshal(record{Data: e.Data, UpdatedAt: e.UpdatedAt.UnixMilli()})
}

func decode(raw []byte) (*stagecache.Entry, error) {
	var r record
	if err := msgpack.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &stagecache.Entry{Data: r.Data, UpdatedAt: time.UnixMilli(r.UpdatedAt)}, nil
}
