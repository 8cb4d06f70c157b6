package utils

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// Transient is implemented by errors that are worth retrying: timeouts and
// session failures caused by flaky network conditions. Errors that don't
// implement it (or report false) propagate immediately.
type Transient interface {
	Transient() bool
}

// RetryExhausted means an operation kept failing transiently until the
// attempt budget ran out. It wraps the last underlying cause.
type RetryExhausted struct {
	Op       string
	Attempts int
	LastErr  error
}

func (e *RetryExhausted) Error() string {
	return e.Op + " failed after retries: " + e.LastErr.Error()
}

func (e *RetryExhausted) Unwrap() error { return e.LastErr }

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *log.Entry

	// OnRetry, if set, is called before each re-attempt. The orchestrator
	// uses it to count retries in the run report.
	OnRetry func()

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Do executes fn with exponential back-off retry on transient failures.
// The wait between attempts doubles from BaseDelay up to MaxDelay and
// observes ctx, so cancellation never waits out a full backoff.
func (r *RetryConfig) Do(ctx context.Context, op string, fn func() error) error {
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	delay := r.BaseDelay

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !isTransient(lastErr) {
			return lastErr
		}

		if attempt == r.MaxAttempts {
			break
		}

		if r.Logger != nil {
			r.Logger.Warnf("%s failed (attempt %d/%d): %v — retrying in %v",
				op, attempt, r.MaxAttempts, lastErr, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		if r.OnRetry != nil {
			r.OnRetry()
		}

		delay *= 2
		if r.MaxDelay > 0 && delay > r.MaxDelay {
			delay = r.MaxDelay
		}
	}

	return &RetryExhausted{Op: op, Attempts: r.MaxAttempts, LastErr: lastErr}
}

func isTransient(err error) bool {
	var t Transient
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
