package stagecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string, string) (*Entry, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Put(context.Context, string, string, Entry) error {
	return errors.New("connection refused")
}

func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }
func (failingStore) Close() error               { return nil }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestCacheTTLPolicy(t *testing.T) {
	c := New(NewMemoryStore(), map[string]time.Duration{"recentTrades": time.Minute}, quietLogger())

	tests := []struct {
		stage string
		want  time.Duration
	}{
		{"profile", 10 * time.Minute},
		{"openPositions", 2 * time.Minute},
		{"recentTrades", time.Minute},
		{"closedPositionsSummary", 15 * time.Minute},
		{"full", 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.TTL(tt.stage), tt.stage)
	}
}

func TestCacheHitAndExpiry(t *testing.T) {
	c := New(NewMemoryStore(), nil, quietLogger())
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	ctx := context.Background()

	_, ok := c.Get(ctx, "0xabc", "openPositions")
	require.False(t, ok)

	data := []byte(`{"positions":[]}`)
	c.Put(ctx, "0xabc", "openPositions", data)

	clock = clock.Add(time.Minute)
	got, ok := c.Get(ctx, "0xabc", "openPositions")
	require.True(t, ok)
	assert.Equal(t, data, got)

	_, ok = c.Get(ctx, "0xabc", "profile")
	assert.False(t, ok, "stages are cached independently")

	clock = clock.Add(time.Minute)
	_, ok = c.Get(ctx, "0xabc", "openPositions")
	assert.False(t, ok, "entry older than its TTL is a miss")
}

func TestCacheSwallowsStoreErrors(t *testing.T) {
	c := New(failingStore{}, nil, quietLogger())
	ctx := context.Background()

	assert.NotPanics(t, func() { c.Put(ctx, "0xabc", "full", []byte("{}")) })
	_, ok := c.Get(ctx, "0xabc", "full")
	assert.False(t, ok)
	assert.Error(t, c.Ping(ctx))
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "0xabc", "full", Entry{Data: []byte("one")}))
	require.NoError(t, s.Put(ctx, "0xabc", "full", Entry{Data: []byte("two")}))

	e, err := s.Get(ctx, "0xabc", "full")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "two", string(e.Data))

	e, err = s.Get(ctx, "0xdef", "full")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestMemoryStorePurge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Unix(1700000000, 0)

	require.NoError(t, s.Put(ctx, "0xa", "profile", Entry{Data: []byte("old"), UpdatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.Put(ctx, "0xa", "full", Entry{Data: []byte("new"), UpdatedAt: now}))

	purgeOnce(ctx, s, now.Add(-time.Hour), quietLogger())

	old, err := s.Get(ctx, "0xa", "profile")
	require.NoError(t, err)
	assert.Nil(t, old)

	fresh, err := s.Get(ctx, "0xa", "full")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, []byte("new"), fresh.Data)
}
