package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/AlanMarvin/polytrak/internal/config"
	"github.com/AlanMarvin/polytrak/internal/metrics"
	"github.com/AlanMarvin/polytrak/internal/reliability"
)

// MaxOffset is the deepest offset the Data API serves
const MaxOffset = 100000

const (
	initialBatchSize = 3
	maxBatchSize     = 5
	// batch shrinks once more than this many requests fail in a row
	failureStreakLimit = 2
)

// ErrUpstreamExhausted means every request failed and nothing was received
var ErrUpstreamExhausted = errors.New("upstream unavailable after retries")

// PageFunc fetches one page at limit/offset
type PageFunc[T any] func(ctx context.Context, limit, offset int) ([]T, error)

// Identified records carry the key used to drop duplicates across pages
type Identified interface {
	IdentityKey() string
}

// Superseder is implemented by records where a duplicate key may carry a
// newer state than the one already kept.
type Superseder[T any] interface {
	Supersedes(old T) bool
}

// Options configures one paginated fetch
type Options struct {
	Endpoint string
	MaxItems int // 0 means bounded only by MaxOffset
	PageSize int

	// HighVolumeThreshold stops the fetch once more items than this have
	// accumulated and marks the result truncated. 0 disables it.
	HighVolumeThreshold int

	MaxOffset       int
	BatchDelay      time.Duration
	ErrorBatchDelay time.Duration
	BaseBackoff     time.Duration
	MaxRetries      int

	Logger logrus.FieldLogger

	// pause waits between batches; nil means a timer bound to ctx
	pause func(ctx context.Context, d time.Duration) error
}

// NewOptions builds Options for endpoint from the fetch tuning
func NewOptions(endpoint string, maxItems, pageSize int, t config.FetchTuning, logger logrus.FieldLogger) Options {
	return Options{
		Endpoint:        endpoint,
		MaxItems:        maxItems,
		PageSize:        pageSize,
		MaxOffset:       MaxOffset,
		BatchDelay:      t.BatchDelay,
		ErrorBatchDelay: t.ErrorBatchDelay,
		BaseBackoff:     t.BaseBackoff,
		MaxRetries:      t.MaxRetries,
		Logger:          logger,
	}
}

type pageResult[T any] struct {
	offset int
	items  []T
	err    error
}

// Paginate walks limit/offset pages in adaptive concurrent batches until a
// batch adds nothing new, MaxItems is reached, or the offset ceiling is hit.
// Partial data is returned without error; fetch quality is reported through rel.
func Paginate[T Identified](ctx context.Context, fetch PageFunc[T], opts Options, rel *reliability.Metrics) ([]T, error) {
	if opts.PageSize <= 0 {
		return nil, fmt.Errorf("%s: page size must be positive", opts.Endpoint)
	}
	if opts.MaxOffset <= 0 {
		opts.MaxOffset = MaxOffset
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if rel == nil {
		rel = reliability.New()
	}
	if opts.pause == nil {
		opts.pause = sleep
	}
	log := opts.Logger.WithField("endpoint", opts.Endpoint)

	var (
		items        []T
		seen         = make(map[string]int)
		offset       = 0
		batchSize    = initialBatchSize
		failStreak   = 0
		requests     = 0
		failures     = 0
		limitReached = false
	)

	full := func() bool { return opts.MaxItems > 0 && len(items) >= opts.MaxItems }

	for !full() {
		offsets := make([]int, 0, batchSize)
		for i := 0; i < batchSize; i++ {
			off := offset + i*opts.PageSize
			if off > opts.MaxOffset {
				limitReached = true
				break
			}
			offsets = append(offsets, off)
		}
		if len(offsets) == 0 {
			break
		}

		// Page failures stay in results so the rest of the batch is kept;
		// only an ended context fails the group.
		results := make([]pageResult[T], len(offsets))
		var g errgroup.Group
		for i, off := range offsets {
			g.Go(func() error {
				page, err := fetchWithRetry(ctx, fetch, opts, off, rel)
				results[i] = pageResult[T]{offset: off, items: page, err: err}
				return ctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		added := 0
		batchFailed := false
		for _, r := range results {
			requests++
			if r.err != nil {
				failures++
				failStreak++
				batchFailed = true
				log.WithError(r.err).WithField("offset", r.offset).Warn("Page fetch failed")
				continue
			}
			failStreak = 0
			for _, item := range r.items {
				key := item.IdentityKey()
				if idx, dup := seen[key]; dup {
					if s, ok := any(item).(Superseder[T]); ok && s.Supersedes(items[idx]) {
						items[idx] = item
					}
					continue
				}
				seen[key] = len(items)
				items = append(items, item)
				added++
			}
		}

		batchSize, failStreak = nextBatchSize(batchSize, failStreak, batchFailed)

		log.WithFields(logrus.Fields{
			"offset":     offset,
			"pages":      len(offsets),
			"added":      added,
			"total":      len(items),
			"batch_size": batchSize,
		}).Debug("Fetched batch")

		if added == 0 {
			// an empty batch at the edge of the ceiling is not a ceiling hit
			limitReached = false
			break
		}
		if opts.HighVolumeThreshold > 0 && len(items) > opts.HighVolumeThreshold {
			rel.MarkTruncated()
			log.WithField("items", len(items)).Info("High-volume wallet, stopping early")
			break
		}
		if limitReached {
			break
		}

		offset += len(offsets) * opts.PageSize

		if full() {
			break
		}

		delay := opts.BatchDelay
		if batchFailed {
			delay = opts.ErrorBatchDelay
		}
		if err := opts.pause(ctx, delay); err != nil {
			return nil, err
		}
	}

	if opts.MaxItems > 0 && len(items) > opts.MaxItems {
		items = items[:opts.MaxItems]
	}

	if limitReached {
		rel.MarkOffsetLimit()
		log.WithField("max_offset", opts.MaxOffset).Warn("Reached API offset limit")
	}

	rel.AddRequested(opts.MaxItems)
	rel.AddReceived(len(items))
	metrics.RecordFetch(opts.Endpoint, len(items))

	if len(items) == 0 && requests > 0 && failures == requests {
		log.WithField("requests", requests).Error("All page requests failed")
		return nil, fmt.Errorf("%s: %w", opts.Endpoint, ErrUpstreamExhausted)
	}

	return items, nil
}

// nextBatchSize grows the batch by one after a clean batch and shrinks it by
// one once the failure streak passes the limit, which also resets the streak.
func nextBatchSize(size, failStreak int, batchFailed bool) (int, int) {
	switch {
	case failStreak > failureStreakLimit:
		return max(1, size-1), 0
	case !batchFailed:
		return min(maxBatchSize, size+1), failStreak
	}
	return size, failStreak
}

type statusCoder interface {
	StatusCode() int
}

func fetchWithRetry[T any](ctx context.Context, fetch PageFunc[T], opts Options, offset int, rel *reliability.Metrics) ([]T, error) {
	for attempt := 0; ; attempt++ {
		page, err := fetch(ctx, opts.PageSize, offset)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var sc statusCoder
		if errors.As(err, &sc) {
			code := sc.StatusCode()
			if !retryableStatus(code) || attempt >= opts.MaxRetries {
				rel.AddFetchError()
				return nil, err
			}
			rel.AddRateLimitHit()
			reason := "server_error"
			if code == http.StatusTooManyRequests {
				reason = "rate_limit"
			}
			metrics.RecordRetry(opts.Endpoint, reason)
		} else {
			rel.AddFetchError()
			if attempt >= opts.MaxRetries {
				return nil, err
			}
			metrics.RecordRetry(opts.Endpoint, "network")
		}

		if err := sleep(ctx, opts.BaseBackoff*time.Duration(1<<attempt)); err != nil {
			return nil, err
		}
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
