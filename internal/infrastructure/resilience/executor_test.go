package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
		BreakerEnabled:      false,
	}
}

func TestDoRetriesRetryableFailures(t *testing.T) {
	executor := NewExecutor(fastConfig())

	calls := 0
	err := executor.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, func(error) Verdict { return Verdict{Retryable: true, RecordFailure: true} })

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	executor := NewExecutor(fastConfig())

	calls := 0
	wantErr := errors.New("fatal")
	err := executor.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return wantErr
	}, func(error) Verdict { return Verdict{Retryable: false, RecordFailure: true} })

	if !errors.Is(err, wantErr) {
		t.Fatalf("Do() error = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	executor := NewExecutor(fastConfig())

	calls := 0
	err := executor.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return errors.New("always down")
	}, func(error) Verdict { return Verdict{Retryable: true, RecordFailure: true} })

	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	executor := NewExecutor(fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := executor.Do(ctx, "op", func(context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	}, func(error) Verdict { return Verdict{Retryable: true, RecordFailure: true} })

	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry after cancel)", calls)
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	cfg := fastConfig()
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	executor := NewExecutor(cfg)

	classify := func(error) Verdict { return Verdict{Retryable: false, RecordFailure: true} }
	fail := func(context.Context) error { return errors.New("down") }

	_ = executor.Do(context.Background(), "op", fail, classify)
	_ = executor.Do(context.Background(), "op", fail, classify)

	err := executor.Do(context.Background(), "op", fail, classify)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}
