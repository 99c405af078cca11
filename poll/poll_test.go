package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func after(n int) Condition {
	calls := 0
	return Condition{Name: "after", Check: func(context.Context) (bool, error) {
		calls++
		return calls > n, nil
	}}
}

func never(name string) Condition {
	return Condition{Name: name, Check: func(context.Context) (bool, error) { return false, nil }}
}

func always(name string) Condition {
	return Condition{Name: name, Check: func(context.Context) (bool, error) { return true, nil }}
}

func TestWaitForAnyReturnsFirstSatisfied(t *testing.T) {
	got, err := WaitForAny(context.Background(), []Condition{never("a"), always("b"), always("c")}, time.Second, time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForAny returned error: %v", err)
	}
	if got.Name != "b" {
		t.Fatalf("expected condition b, got %q", got.Name)
	}
}

func TestWaitForAnyPollsUntilTrue(t *testing.T) {
	cond := after(3)
	cond.Name = "late"
	got, err := WaitForAny(context.Background(), []Condition{never("a"), cond}, time.Second, time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForAny returned error: %v", err)
	}
	if got.Name != "late" {
		t.Fatalf("expected late, got %q", got.Name)
	}
}

func TestWaitForAnyTimeoutBound(t *testing.T) {
	timeout := 30 * time.Millisecond
	interval := 10 * time.Millisecond
	start := time.Now()
	_, err := WaitForAny(context.Background(), []Condition{never("a"), never("b")}, timeout, interval)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTimeoutExceeded) {
		t.Fatalf("expected ErrTimeoutExceeded, got %v", err)
	}
	// Generous slack for scheduler jitter; the loop itself never sleeps past the deadline.
	if elapsed > timeout+interval+50*time.Millisecond {
		t.Fatalf("WaitForAny blocked for %s, budget %s", elapsed, timeout+interval)
	}
}

func TestWaitForAnyTreatsErrorsAsUnsatisfied(t *testing.T) {
	failing := Condition{Name: "broken", Check: func(context.Context) (bool, error) {
		return true, errors.New("detached node")
	}}
	_, err := WaitForAny(context.Background(), []Condition{failing}, 5*time.Millisecond, time.Millisecond)
	if !errors.Is(err, ErrTimeoutExceeded) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestWaitForAnyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WaitForAny(ctx, []Condition{never("a")}, time.Second, time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitUntilAllGone(t *testing.T) {
	gone := Condition{Name: "spinner", Check: func() func(context.Context) (bool, error) {
		calls := 0
		return func(context.Context) (bool, error) {
			calls++
			return calls < 3, nil
		}
	}()}
	if err := WaitUntilAllGone(context.Background(), []Condition{gone, never("banner")}, time.Second, time.Millisecond); err != nil {
		t.Fatalf("WaitUntilAllGone returned error: %v", err)
	}

	err := WaitUntilAllGone(context.Background(), []Condition{never("a"), always("stuck")}, 5*time.Millisecond, time.Millisecond)
	if !errors.Is(err, ErrTimeoutExceeded) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), nil, "click", 5, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("obscured")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core).Sugar()
	cause := errors.New("button detached")
	calls := 0
	err := Retry(context.Background(), log, "save", 3, time.Millisecond, func(context.Context) error {
		calls++
		return cause
	})
	if !errors.Is(err, ErrActionFailed) {
		t.Fatalf("expected ErrActionFailed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if logs.Len() != 3 {
		t.Fatalf("expected 3 warnings, got %d", logs.Len())
	}
}

func TestRetryAlwaysCallsOnce(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), nil, "noop", 0, 0, func(context.Context) error {
		calls++
		return nil
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryValue(t *testing.T) {
	v, err := RetryValue(context.Background(), nil, "read", 2, 0, func(context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("RetryValue = %q, %v", v, err)
	}
}
