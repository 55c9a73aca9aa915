package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlanMarvin/polytrak/internal/reliability"
)

type record struct {
	ID string
}

func (r record) IdentityKey() string { return r.ID }

type snapshot struct {
	ID      string
	Version int
}

func (s snapshot) IdentityKey() string { return s.ID }

func (s snapshot) Supersedes(old snapshot) bool { return s.Version > old.Version }

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func testOptions(pageSize, maxItems int) Options {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return Options{
		Endpoint:    "test",
		MaxItems:    maxItems,
		PageSize:    pageSize,
		BaseBackoff: time.Millisecond,
		MaxRetries:  3,
		Logger:      logger,
	}
}

// dataset serves total records; total < 0 means unbounded
func dataset(total int) PageFunc[record] {
	return func(_ context.Context, limit, offset int) ([]record, error) {
		end := offset + limit
		if total >= 0 {
			if offset >= total {
				return nil, nil
			}
			end = min(end, total)
		}
		page := make([]record, 0, end-offset)
		for i := offset; i < end; i++ {
			page = append(page, record{ID: fmt.Sprintf("r%d", i)})
		}
		return page, nil
	}
}

func TestPaginateStopsWhenBatchAddsNothing(t *testing.T) {
	rel := reliability.New()
	items, err := Paginate(context.Background(), dataset(23), testOptions(5, 100), rel)
	require.NoError(t, err)
	require.Len(t, items, 23)
	for i, item := range items {
		assert.Equal(t, fmt.Sprintf("r%d", i), item.ID)
	}

	s := rel.Snapshot()
	assert.EqualValues(t, 23, s.ReceivedCount)
	assert.EqualValues(t, 100, s.RequestedMax)
	assert.False(t, s.HitOffsetLimit)
	assert.False(t, s.Truncated)
}

func TestPaginateTruncatesToMaxItems(t *testing.T) {
	rel := reliability.New()
	items, err := Paginate(context.Background(), dataset(1000), testOptions(10, 25), rel)
	require.NoError(t, err)
	assert.Len(t, items, 25)
	assert.EqualValues(t, 25, rel.Snapshot().ReceivedCount)
}

func TestPaginateDropsDuplicateKeys(t *testing.T) {
	base := dataset(40)
	overlapping := func(ctx context.Context, limit, offset int) ([]record, error) {
		page, err := base(ctx, limit, offset)
		if err != nil || len(page) == 0 {
			return page, err
		}
		// repeat the first record on every page
		return append(page, record{ID: "r0"}), nil
	}

	rel := reliability.New()
	items, err := Paginate(context.Background(), overlapping, testOptions(10, 0), rel)
	require.NoError(t, err)

	keys := make(map[string]bool)
	for _, item := range items {
		require.False(t, keys[item.ID], "duplicate key %s", item.ID)
		keys[item.ID] = true
	}
	assert.Len(t, items, 40)
	assert.EqualValues(t, 40, rel.Snapshot().ReceivedCount)
}

func TestPaginateKeepsSupersedingDuplicate(t *testing.T) {
	pages := map[int][]snapshot{
		0:  {{ID: "a", Version: 1}, {ID: "b", Version: 5}},
		2:  {{ID: "a", Version: 3}, {ID: "c", Version: 1}},
		4:  {{ID: "b", Version: 2}, {ID: "d", Version: 1}},
		6:  {},
		8:  {},
		10: {},
	}
	fetch := func(_ context.Context, _, offset int) ([]snapshot, error) {
		return pages[offset], nil
	}

	items, err := Paginate(context.Background(), fetch, testOptions(2, 0), reliability.New())
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, snapshot{ID: "a", Version: 3}, items[0])
	assert.Equal(t, snapshot{ID: "b", Version: 5}, items[1])
	assert.Equal(t, "c", items[2].ID)
	assert.Equal(t, "d", items[3].ID)
}

func TestPaginateOffsetLimit(t *testing.T) {
	opts := testOptions(10, 0)
	opts.MaxOffset = 40

	rel := reliability.New()
	items, err := Paginate(context.Background(), dataset(-1), opts, rel)
	require.NoError(t, err)
	assert.Len(t, items, 50)
	assert.True(t, rel.Snapshot().HitOffsetLimit)
}

func TestPaginateHighVolumeShortCircuit(t *testing.T) {
	opts := testOptions(10, 0)
	opts.HighVolumeThreshold = 25

	rel := reliability.New()
	items, err := Paginate(context.Background(), dataset(-1), opts, rel)
	require.NoError(t, err)
	assert.Len(t, items, 30)
	assert.True(t, rel.Snapshot().Truncated)
	assert.False(t, rel.Snapshot().HitOffsetLimit)
}

func TestPaginateRetriesRateLimit(t *testing.T) {
	var mu sync.Mutex
	attempts := make(map[int]int)
	base := dataset(5)
	fetch := func(ctx context.Context, limit, offset int) ([]record, error) {
		mu.Lock()
		attempts[offset]++
		n := attempts[offset]
		mu.Unlock()
		if offset == 0 && n <= 2 {
			return nil, statusErr(429)
		}
		return base(ctx, limit, offset)
	}

	rel := reliability.New()
	items, err := Paginate(context.Background(), fetch, testOptions(5, 100), rel)
	require.NoError(t, err)
	assert.Len(t, items, 5)

	s := rel.Snapshot()
	assert.EqualValues(t, 2, s.RateLimitHits)
	assert.EqualValues(t, 0, s.FetchErrors)
	assert.Equal(t, 3, attempts[0])
}

func TestPaginateClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context, int, int) ([]record, error) {
		calls.Add(1)
		return nil, statusErr(404)
	}

	rel := reliability.New()
	items, err := Paginate(context.Background(), fetch, testOptions(10, 100), rel)
	require.ErrorIs(t, err, ErrUpstreamExhausted)
	assert.Empty(t, items)
	assert.EqualValues(t, 3, calls.Load())

	s := rel.Snapshot()
	assert.EqualValues(t, 3, s.FetchErrors)
	assert.EqualValues(t, 0, s.RateLimitHits)
}

func TestPaginateNetworkFailuresExhaustRetries(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context, int, int) ([]record, error) {
		calls.Add(1)
		return nil, errors.New("connection reset")
	}

	opts := testOptions(10, 100)
	opts.MaxRetries = 2

	rel := reliability.New()
	_, err := Paginate(context.Background(), fetch, opts, rel)
	require.ErrorIs(t, err, ErrUpstreamExhausted)

	// three requests in the first batch, three attempts each
	assert.EqualValues(t, 9, calls.Load())
	assert.EqualValues(t, 9, rel.Snapshot().FetchErrors)
}

func TestPaginatePartialFailureReturnsData(t *testing.T) {
	base := dataset(15)
	fetch := func(ctx context.Context, limit, offset int) ([]record, error) {
		if offset == 5 {
			return nil, statusErr(400)
		}
		return base(ctx, limit, offset)
	}

	rel := reliability.New()
	items, err := Paginate(context.Background(), fetch, testOptions(5, 100), rel)
	require.NoError(t, err)
	assert.Len(t, items, 10)
	assert.EqualValues(t, 1, rel.Snapshot().FetchErrors)
}

func TestPaginateHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(ctx context.Context, limit, offset int) ([]record, error) {
		cancel()
		return nil, ctx.Err()
	}

	_, err := Paginate(ctx, fetch, testOptions(10, 100), reliability.New())
	require.ErrorIs(t, err, context.Canceled)
}

type batchPause struct {
	calls int64
	delay time.Duration
}

// recordBatches counts page calls and captures every pause between batches.
// Batches run to completion before a pause, so the call count at each pause
// marks a batch boundary.
func recordBatches(fetch PageFunc[record], opts *Options) (PageFunc[record], *[]batchPause, *atomic.Int64) {
	var calls atomic.Int64
	var pauses []batchPause
	opts.BatchDelay = 200 * time.Millisecond
	opts.ErrorBatchDelay = 500 * time.Millisecond
	opts.pause = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, batchPause{calls: calls.Load(), delay: d})
		return nil
	}
	counted := func(ctx context.Context, limit, offset int) ([]record, error) {
		calls.Add(1)
		return fetch(ctx, limit, offset)
	}
	return counted, &pauses, &calls
}

func TestPaginateGrowsBatchAfterCleanBatches(t *testing.T) {
	opts := testOptions(1, 0)
	fetch, pauses, calls := recordBatches(dataset(12), &opts)

	items, err := Paginate(context.Background(), fetch, opts, nil)
	require.NoError(t, err)
	assert.Len(t, items, 12)

	// batches of 3, 4, 5 then a capped 5 that comes back empty
	assert.Equal(t, []batchPause{
		{calls: 3, delay: 200 * time.Millisecond},
		{calls: 7, delay: 200 * time.Millisecond},
		{calls: 12, delay: 200 * time.Millisecond},
	}, *pauses)
	assert.EqualValues(t, 17, calls.Load())
}

func TestPaginateShrinksBatchAfterFailureStreak(t *testing.T) {
	failing := map[int]bool{4: true, 5: true, 6: true}
	base := dataset(12)
	flaky := func(ctx context.Context, limit, offset int) ([]record, error) {
		if failing[offset] {
			return nil, statusErr(404)
		}
		return base(ctx, limit, offset)
	}

	opts := testOptions(1, 0)
	fetch, pauses, calls := recordBatches(flaky, &opts)

	rel := reliability.New()
	items, err := Paginate(context.Background(), fetch, opts, rel)
	require.NoError(t, err)
	assert.Len(t, items, 9)

	// 3 clean, 4 ending in three failures, shrunk to 3, then 4 and 5
	assert.Equal(t, []batchPause{
		{calls: 3, delay: 200 * time.Millisecond},
		{calls: 7, delay: 500 * time.Millisecond},
		{calls: 10, delay: 200 * time.Millisecond},
		{calls: 14, delay: 200 * time.Millisecond},
	}, *pauses)
	assert.EqualValues(t, 19, calls.Load())
	assert.EqualValues(t, 3, rel.Snapshot().FetchErrors)
}

func TestNextBatchSize(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		streak     int
		failed     bool
		wantSize   int
		wantStreak int
	}{
		{"clean batch grows", 3, 0, false, 4, 0},
		{"growth is capped", 5, 0, false, 5, 0},
		{"failure within streak limit holds", 4, 2, true, 4, 2},
		{"streak past limit shrinks and resets", 4, 3, true, 3, 0},
		{"shrink never goes below one", 1, 5, true, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, streak := nextBatchSize(tt.size, tt.streak, tt.failed)
			assert.Equal(t, tt.wantSize, size)
			assert.Equal(t, tt.wantStreak, streak)
		})
	}
}
