package stagecache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AlanMarvin/polytrak/internal/metrics"
)

// DefaultTTL applies to stages without an explicit entry in the policy
const DefaultTTL = 5 * time.Minute

// DefaultTTLs is the freshness window of each cached stage
var DefaultTTLs = map[string]time.Duration{
	"profile":                10 * time.Minute,
	"openPositions":          2 * time.Minute,
	"recentTrades":           15 * time.Minute,
	"closedPositionsSummary": 15 * time.Minute,
}

// Entry is one cached stage result. Data is stored exactly as computed.
type Entry struct {
	Data      []byte
	UpdatedAt time.Time
}

// Store persists entries keyed by (address, stage). Get returns (nil, nil)
// when nothing is stored. Put overwrites; concurrent writers race with
// last-write-wins.
type Store interface {
	Get(ctx context.Context, address, stage string) (*Entry, error)
	Put(ctx context.Context, address, stage string, entry Entry) error
	Ping(ctx context.Context) error
	Close() error
}

// Cache applies the per-stage TTL policy over a Store. Store failures are
// logged and counted, never returned: a failed read is a miss.
type Cache struct {
	store Store
	ttls  map[string]time.Duration
	log   *logrus.Logger
	now   func() time.Time
}

// New creates a Cache. overrides replace individual entries of DefaultTTLs.
func New(store Store, overrides map[string]time.Duration, log *logrus.Logger) *Cache {
	ttls := make(map[string]time.Duration, len(DefaultTTLs)+len(overrides))
	for stage, ttl := range DefaultTTLs {
		ttls[stage] = ttl
	}
	for stage, ttl := range overrides {
		ttls[stage] = ttl
	}
	return &Cache{store: store, ttls: ttls, log: log, now: time.Now}
}

// TTL returns how long a stage result stays fresh
func (c *Cache) TTL(stage string) time.Duration {
	if ttl, ok := c.ttls[stage]; ok {
		return ttl
	}
	if ttl, ok := c.ttls["default"]; ok {
		return ttl
	}
	return DefaultTTL
}

// Get returns the cached data for (address, stage) if it is still fresh
func (c *Cache) Get(ctx context.Context, address, stage string) ([]byte, bool) {
	start := time.Now()
	entry, err := c.store.Get(ctx, address, stage)
	if err != nil {
		metrics.RecordCacheOperation("get", "error", time.Since(start))
		c.log.WithError(err).WithFields(logrus.Fields{
			"address": address,
			"stage":   stage,
		}).Warn("Stage cache read failed, recomputing")
		return nil, false
	}
	if entry == nil {
		metrics.RecordCacheOperation("get", "miss", time.Since(start))
		return nil, false
	}
	if c.now().Sub(entry.UpdatedAt) >= c.TTL(stage) {
		metrics.RecordCacheOperation("get", "stale", time.Since(start))
		return nil, false
	}

	metrics.RecordCacheOperation("get", "hit", time.Since(start))
	return entry.Data, true
}

// Put stores data for (address, stage)
func (c *Cache) Put(ctx context.Context, address, stage string, data []byte) {
	start := time.Now()
	err := c.store.Put(ctx, address, stage, Entry{Data: data, UpdatedAt: c.now()})
	if err != nil {
		metrics.RecordCacheOperation("put", "error", time.Since(start))
		c.log.WithError(err).WithFields(logrus.Fields{
			"address": address,
			"stage":   stage,
		}).Warn("Stage cache write failed")
		return
	}
	metrics.RecordCacheOperation("put", "success", time.Since(start))
}

// Ping checks the backing store
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}
