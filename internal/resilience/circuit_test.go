package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCircuitBreaker_ClosedState_PassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	var calls int
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cfg := CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     1 * time.Minute,
	}
	cb := NewCircuitBreaker(cfg)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	if cb.State() != CircuitOpen {
		t.Errorf("expected open state after %d failures, got %s", cfg.FailureThreshold, cb.State())
	}
	if cb.CanExecute() {
		t.Error("expected CanExecute to be false while open")
	}

	// Execute must reject without invoking fn.
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called when circuit is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	cfg := CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     1 * time.Minute,
	}
	cb := NewCircuitBreaker(cfg)

	cb.RecordFailure()
	cb.RecordFailure()

	failures, state := cb.Counters()
	if failures != 2 {
		t.Errorf("expected 2 consecutive failures, got %d", failures)
	}
	if state != CircuitClosed {
		t.Errorf("expected closed state, got %s", state)
	}

	cb.RecordSuccess()

	failures, _ = cb.Counters()
	if failures != 0 {
		t.Errorf("expected counter reset after success, got %d", failures)
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cfg := CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     30 * time.Second,
	}
	cb := NewCircuitBreaker(cfg)

	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	cb.RecordFailure()
	if cb.CanExecute() {
		t.Fatal("expected rejection immediately after opening")
	}

	// Advance past the reset timeout: exactly one probe is allowed.
	now = now.Add(31 * time.Second)
	if !cb.CanExecute() {
		t.Fatal("expected probe allowed after reset timeout")
	}
	if _, state := cb.Counters(); state != CircuitHalfOpen {
		t.Errorf("expected half-open, got %s", state)
	}

	// Probe failure reopens.
	cb.RecordFailure()
	if _, state := cb.Counters(); state != CircuitOpen {
		t.Errorf("expected reopen after half-open failure, got %s", state)
	}

	// Another probe after a second timeout; success closes.
	now = now.Add(31 * time.Second)
	if !cb.CanExecute() {
		t.Fatal("expected probe allowed after second timeout")
	}
	cb.RecordSuccess()
	if _, state := cb.Counters(); state != CircuitClosed {
		t.Errorf("expected closed after half-open success, got %s", state)
	}
}

func TestCircuitBreaker_NeverOpenToClosedDirectly(t *testing.T) {
	var transitions []string
	cfg := CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	}
	cb := NewCircuitBreaker(cfg)

	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(11 * time.Second)
	cb.CanExecute()
	cb.RecordSuccess()

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), transitions)
	}
	for i, tr := range want {
		if transitions[i] != tr {
			t.Errorf("transition %d: expected %s, got %s", i, tr, transitions[i])
		}
	}
}

func TestCircuitBreaker_ShouldTripFilter(t *testing.T) {
	sentinel := errors.New("no trip")
	cfg := CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     1 * time.Minute,
		ShouldTrip:       func(err error) bool { return !errors.Is(err, sentinel) },
	}
	cb := NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(_ context.Context) error { return sentinel })
	if _, state := cb.Counters(); state != CircuitClosed {
		t.Errorf("filtered error should not trip breaker, got %s", state)
	}

	_ = cb.Execute(context.Background(), func(_ context.Context) error { return errors.New("boom") })
	if _, state := cb.Counters(); state != CircuitOpen {
		t.Errorf("expected open after unfiltered error, got %s", state)
	}
}

func TestExecuteVal_ReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	got, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "profile", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "profile" {
		t.Errorf("expected profile, got %q", got)
	}
}

func TestSourceBreakers_PerSourceIsolation(t *testing.T) {
	sb := NewSourceBreakers(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     1 * time.Minute,
	})

	sb.Get("apollo").RecordFailure()

	if sb.Get("apollo").State() != CircuitOpen {
		t.Error("expected apollo breaker open")
	}
	if sb.Get("pdl").State() != CircuitClosed {
		t.Error("expected pdl breaker unaffected")
	}

	states := sb.States()
	if states["apollo"] != CircuitOpen || states["pdl"] != CircuitClosed {
		t.Errorf("unexpected states snapshot: %v", states)
	}
}

func TestSourceBreakers_ConcurrentGet(t *testing.T) {
	sb := NewSourceBreakers(DefaultCircuitBreakerConfig())

	var wg sync.WaitGroup
	breakers := make([]*CircuitBreaker, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			breakers[i] = sb.Get("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < 50; i++ {
		if breakers[i] != breakers[0] {
			t.Fatal("expected all goroutines to observe the same breaker instance")
		}
	}
}
