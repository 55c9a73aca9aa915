package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket shared by every request a client makes.
// The fetcher runs up to five pages concurrently; the bucket keeps the
// aggregate rate under the upstream limit.
type Limiter struct {
	rate       float64 // tokens per second
	tokens     float64
	burst      float64
	lastUpdate time.Time
	mu         sync.Mutex
	now        func() time.Time
}

// New creates a limiter refilling at rps with room for burst requests
func New(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 1.0
	}
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rate:  rps,
		burst: float64(burst),
		now:   time.Now,
	}
	l.tokens = l.burst
	l.lastUpdate = l.now()
	return l
}

// Wait blocks until a token is available or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		wait := l.reserve()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token and returns zero, or returns how long until one is due
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.lastUpdate).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastUpdate = now

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return 0
	}

	missing := 1.0 - l.tokens
	return time.Duration(missing / l.rate * float64(time.Second))
}
