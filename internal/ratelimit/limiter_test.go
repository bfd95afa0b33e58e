package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limits Limits) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, "test", limits)
}

func TestReserveWithinLimit(t *testing.T) {
	l := newTestLimiter(t, Limits{PerSecond: 5})

	for i := 0; i < 5; i++ {
		allowed, _, err := l.Reserve(context.Background(), 1)
		if err != nil {
			t.Fatalf("Reserve %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("Reserve %d denied under the limit", i)
		}
	}
}

func TestReserveDeniedAtSecondLimit(t *testing.T) {
	l := newTestLimiter(t, Limits{PerSecond: 2})

	ctx := context.Background()
	l.Reserve(ctx, 2)

	allowed, wait, err := l.Reserve(ctx, 1)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if allowed {
		t.Error("Reserve allowed over the per-second limit")
	}
	if wait != time.Second {
		t.Errorf("wait = %v, want 1s", wait)
	}
}

func TestDeniedReserveDoesNotConsume(t *testing.T) {
	l := newTestLimiter(t, Limits{PerSecond: 3})
	ctx := context.Background()

	l.Reserve(ctx, 2)

	// Asking for more than remains must deny without touching counters.
	if allowed, _, _ := l.Reserve(ctx, 2); allowed {
		t.Fatal("over-budget reserve allowed")
	}
	if allowed, _, _ := l.Reserve(ctx, 1); !allowed {
		t.Error("remaining budget consumed by a denied reserve")
	}
}

func TestDailyLimitIsTerminal(t *testing.T) {
	l := newTestLimiter(t, Limits{PerDay: 10})

	ctx := context.Background()
	l.Reserve(ctx, 10)

	_, _, err := l.Reserve(ctx, 1)
	if !errors.Is(err, ErrDailyLimit) {
		t.Errorf("err = %v, want ErrDailyLimit", err)
	}
}

func TestUsageReflectsReservations(t *testing.T) {
	l := newTestLimiter(t, Limits{PerSecond: 100, PerDay: 1000})

	ctx := context.Background()
	l.Reserve(ctx, 7)

	usage, err := l.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage["second_current"] != 7 {
		t.Errorf("second_current = %d, want 7", usage["second_current"])
	}
	if usage["daily_current"] != 7 {
		t.Errorf("daily_current = %d, want 7", usage["daily_current"])
	}
	if usage["daily_limit"] != 1000 {
		t.Errorf("daily_limit = %d, want 1000", usage["daily_limit"])
	}
}
