package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

type flakyErr struct{ msg string }

func (e *flakyErr) Error() string   { return e.msg }
func (e *flakyErr) Transient() bool { return true }

func newTestRetry(t *testing.T, maxAttempts int) (*RetryConfig, *[]time.Duration) {
	t.Helper()
	delays := &[]time.Duration{}
	r := &RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Logger:      log.WithField("test", "retry"),
		sleep: func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
	return r, delays
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	r, delays := newTestRetry(t, 5)

	calls := 0
	err := r.Do(context.Background(), "op", func() error {
		calls++
		if calls <= 2 {
			return &flakyErr{"timeout"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 3 {
		t.Errorf("operation ran %d times; want 3", calls)
	}
	if len(*delays) != 2 {
		t.Fatalf("slept %d times; want 2", len(*delays))
	}
	for i := 1; i < len(*delays); i++ {
		if (*delays)[i] <= (*delays)[i-1] {
			t.Errorf("backoff not strictly increasing: %v", *delays)
		}
	}
}

func TestDoPermanentErrorNotRetried(t *testing.T) {
	r, delays := newTestRetry(t, 5)

	boom := errors.New("malformed query")
	calls := 0
	err := r.Do(context.Background(), "op", func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the underlying error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent error retried: %d calls", calls)
	}
	if len(*delays) != 0 {
		t.Errorf("slept %d times for a permanent error", len(*delays))
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	r, delays := newTestRetry(t, 3)

	last := &flakyErr{"still down"}
	err := r.Do(context.Background(), "op", func() error { return last })

	var exhausted *RetryExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetryExhausted, got %v", err)
	}
	if !errors.Is(err, last) {
		t.Error("RetryExhausted does not wrap the last cause")
	}
	if exhausted.Attempts != 3 {
		t.Errorf("attempts = %d; want 3", exhausted.Attempts)
	}
	if len(*delays) != 2 {
		t.Errorf("slept %d times; want 2", len(*delays))
	}
}

func TestDoCapsDelay(t *testing.T) {
	r, delays := newTestRetry(t, 6)
	r.BaseDelay = 300 * time.Millisecond
	r.MaxDelay = time.Second

	_ = r.Do(context.Background(), "op", func() error { return &flakyErr{"x"} })

	for _, d := range *delays {
		if d > r.MaxDelay {
			t.Errorf("delay %v exceeds cap %v", d, r.MaxDelay)
		}
	}
}

func TestDoObservesCancellation(t *testing.T) {
	r, _ := newTestRetry(t, 5)
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, "op", func() error { return &flakyErr{"x"} })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoCountsRetries(t *testing.T) {
	r, _ := newTestRetry(t, 4)
	retries := 0
	r.OnRetry = func() { retries++ }

	calls := 0
	_ = r.Do(context.Background(), "op", func() error {
		calls++
		if calls < 4 {
			return &flakyErr{"x"}
		}
		return nil
	})
	if retries != 3 {
		t.Errorf("counted %d retries; want 3", retries)
	}
}
