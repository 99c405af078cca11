// Package poll provides the cooperative waiting helpers used to drive a live
// page whose timing cannot be predicted: waiting for any of several
// conditions, waiting for a set of conditions to clear, and bounded retries.
//
// Every helper takes a context that is consulted on each poll tick, so a
// caller can abandon a wait at any time.
package poll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrTimeoutExceeded marks a required state that never appeared or
	// disappeared within its budget.
	ErrTimeoutExceeded = errors.New("timeout exceeded")
	// ErrActionFailed marks a retried action whose attempts were exhausted.
	ErrActionFailed = errors.New("action failed")
)

// Condition is a named predicate over live page state.
type Condition struct {
	Name  string
	Check func(ctx context.Context) (bool, error)
}

// RetryPolicy bounds how often an action is attempted.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Run applies the policy to action.
func (p RetryPolicy) Run(ctx context.Context, log *zap.SugaredLogger, name string, action func(context.Context) error) error {
	return Retry(ctx, log, name, p.MaxAttempts, p.Delay, action)
}

// WaitForAny polls every condition each interval and returns the first one
// observed true. A check that errors counts as not satisfied.
func WaitForAny(ctx context.Context, conds []Condition, timeout, interval time.Duration) (Condition, error) {
	if len(conds) == 0 {
		return Condition{}, errors.New("poll: wait for any: no conditions")
	}
	var (
		matched Condition
		lastErr error
	)
	err := tick(ctx, timeout, interval, func() bool {
		for _, c := range conds {
			ok, err := c.Check(ctx)
			if err != nil {
				lastErr = err
				continue
			}
			if ok {
				matched = c
				return true
			}
		}
		return false
	})
	if err != nil {
		return Condition{}, timeoutError(err, "none of", conds, "appeared", timeout, lastErr)
	}
	return matched, nil
}

// WaitUntilAllGone returns once every condition is false in the same tick.
// A check that errors counts as still present.
func WaitUntilAllGone(ctx context.Context, conds []Condition, timeout, interval time.Duration) error {
	var lastErr error
	err := tick(ctx, timeout, interval, func() bool {
		for _, c := range conds {
			ok, err := c.Check(ctx)
			if err != nil {
				lastErr = err
				return false
			}
			if ok {
				return false
			}
		}
		return true
	})
	if err != nil {
		return timeoutError(err, "", conds, "did not disappear", timeout, lastErr)
	}
	return nil
}

// WaitFor waits for a single condition to hold.
func WaitFor(ctx context.Context, cond Condition, timeout, interval time.Duration) error {
	_, err := WaitForAny(ctx, []Condition{cond}, timeout, interval)
	return err
}

// Retry invokes action up to attempts times, logging each failure and
// sleeping delay between attempts. Actions must be safe to repeat.
func Retry(ctx context.Context, log *zap.SugaredLogger, name string, attempts int, delay time.Duration, action func(context.Context) error) error {
	_, err := RetryValue(ctx, log, name, attempts, delay, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, action(ctx)
	})
	return err
}

// RetryValue is Retry for actions that produce a result.
func RetryValue[T any](ctx context.Context, log *zap.SugaredLogger, name string, attempts int, delay time.Duration, action func(context.Context) (T, error)) (T, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if attempts < 1 {
		attempts = 1
	}
	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := action(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		log.Warnw("attempt failed", "action", name, "attempt", attempt, "attempts", attempts, "error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if attempt < attempts {
			if err := Sleep(ctx, delay); err != nil {
				return zero, err
			}
		}
	}
	return zero, fmt.Errorf("%w: %s after %d attempts: %w", ErrActionFailed, name, attempts, lastErr)
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// tick evaluates done immediately and then once per interval until it
// reports true or the timeout elapses. The final evaluation happens at the
// deadline, never after it plus an interval.
func tick(ctx context.Context, timeout, interval time.Duration, done func() bool) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if done() {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeoutExceeded
		}
		if err := Sleep(ctx, min(interval, remaining)); err != nil {
			return err
		}
	}
}

func timeoutError(err error, lead string, conds []Condition, verb string, timeout time.Duration, lastErr error) error {
	if !errors.Is(err, ErrTimeoutExceeded) {
		return err
	}
	names := make([]string, 0, len(conds))
	for _, c := range conds {
		names = append(names, c.Name)
	}
	msg := fmt.Sprintf("[%s] %s within %s", strings.Join(names, ", "), verb, timeout)
	if lead != "" {
		msg = lead + " " + msg
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %s (last error: %v)", ErrTimeoutExceeded, msg, lastErr)
	}
	return fmt.Errorf("%w: %s", ErrTimeoutExceeded, msg)
}
