package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// noSleep runs retries without wall-clock delays, recording requested waits.
func noSleep(waits *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	var waits []time.Duration
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0,
	}.WithSleep(noSleep(&waits))

	var calls int
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("rate limited"), 429)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}

	// Backoff doubles: 1s then 2s.
	if len(waits) != 2 || waits[0] != 1*time.Second || waits[1] != 2*time.Second {
		t.Errorf("unexpected backoff sequence: %v", waits)
	}
}

func TestDo_DoesNotRetryPermanentErrors(t *testing.T) {
	var waits []time.Duration
	cfg := DefaultRetryConfig().WithSleep(noSleep(&waits))

	var calls int
	permanent := errors.New("401 unauthorized")
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var waits []time.Duration
	cfg := RetryConfig{MaxAttempts: 3, JitterFraction: 0}.WithSleep(noSleep(&waits))

	var calls int
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("503"), 503)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	err := Do(ctx, DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("timeout"), 0)
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected no retries after cancel, got %d calls", calls)
	}
}

func TestDoVal_PreservesValue(t *testing.T) {
	var waits []time.Duration
	cfg := RetryConfig{MaxAttempts: 2, JitterFraction: 0}.WithSleep(noSleep(&waits))

	var calls int
	val, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, NewTransientError(errors.New("429"), 429)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	var waits []time.Duration
	var attempts []int
	cfg := RetryConfig{
		MaxAttempts:    3,
		JitterFraction: 0,
		OnRetry:        func(attempt int, _ error) { attempts = append(attempts, attempt) },
	}.WithSleep(noSleep(&waits))

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("flaky"), 500)
	})

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("unexpected OnRetry attempts: %v", attempts)
	}
}

func TestComputeBackoff_CapsAtMax(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     4 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0,
	})

	if d := computeBackoff(10, cfg); d != 4*time.Second {
		t.Errorf("expected cap at 4s, got %v", d)
	}
}
