package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiterBurst(t *testing.T) {
	l := New(1, 3)
	clock := time.Unix(1700000000, 0)
	l.now = func() time.Time { return clock }
	l.lastUpdate = clock

	for i := 0; i < 3; i++ {
		if wait := l.reserve(); wait != 0 {
			t.Fatalf("token %d: expected immediate grant, got wait %v", i, wait)
		}
	}

	wait := l.reserve()
	if wait <= 0 || wait > time.Second {
		t.Fatalf("expected wait within (0, 1s], got %v", wait)
	}

	clock = clock.Add(time.Second)
	if wait := l.reserve(); wait != 0 {
		t.Fatalf("expected refill after 1s, got wait %v", wait)
	}
}

func TestLimiterDefaults(t *testing.T) {
	l := New(0, 0)
	if l.rate != 1.0 {
		t.Errorf("rate: got %v, want 1", l.rate)
	}
	if l.burst != 1.0 {
		t.Errorf("burst: got %v, want 1", l.burst)
	}
}

func TestLimiterWaitCancelled(t *testing.T) {
	l := New(0.001, 1)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected context error for an empty bucket")
	}
}
