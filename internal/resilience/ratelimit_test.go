package resilience

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_BurstWithinCapacity(t *testing.T) {
	rl := NewRateLimiter(10)

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := rl.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("burst within capacity should not block, took %v", elapsed)
	}
}

func TestRateLimiter_DelaysBeyondCapacity(t *testing.T) {
	rl := NewRateLimiter(10) // one token every 100ms once the bucket drains

	for i := 0; i < 10; i++ {
		if err := rl.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	start := time.Now()
	if err := rl.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire beyond capacity: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond {
		t.Errorf("expected roughly 100ms delay for the 11th acquire, got %v", elapsed)
	}
}

func TestRateLimiter_NeverRejects(t *testing.T) {
	rl := NewRateLimiter(100)
	for i := 0; i < 250; i++ {
		if err := rl.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire must always eventually grant, got %v", err)
		}
	}
}

func TestRateLimiter_ContextCancelDuringWait(t *testing.T) {
	rl := NewRateLimiter(1)
	_ = rl.Acquire(context.Background()) // drain the bucket

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Acquire(ctx); err == nil {
		t.Error("expected error when context expires during wait")
	}
}

func TestRateLimiter_ZeroRateDisablesLimiting(t *testing.T) {
	rl := NewRateLimiter(0)
	start := time.Now()
	for i := 0; i < 1000; i++ {
		if err := rl.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("disabled limiter should never block, took %v", elapsed)
	}
}

func TestSourceLimiters_PerSourceRates(t *testing.T) {
	sl := NewSourceLimiters(map[string]float64{"apollo": 5}, 2)

	a := sl.Get("apollo")
	if a == nil || a.limiter == nil {
		t.Fatal("expected configured limiter for apollo")
	}
	if sl.Get("apollo") != a {
		t.Error("expected cached limiter instance on second get")
	}

	b := sl.Get("unknown")
	if b == nil || b.limiter == nil {
		t.Fatal("expected fallback limiter for unknown source")
	}
}
