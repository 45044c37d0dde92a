// Package wait implements the convergence-wait primitive used by every
// polling site in the suite: evaluate a condition at a fixed interval
// until it reports done or a wall-clock timeout expires.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config controls polling cadence. Zero fields take the defaults.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Default is used whenever a caller leaves Interval or Timeout unset.
var Default = Config{
	Interval: 5 * time.Second,
	Timeout:  5 * time.Minute,
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = Default.Interval
	}
	if c.Timeout == 0 {
		c.Timeout = Default.Timeout
	}
}

// TimeoutError reports that a condition never converged within the
// configured timeout. LastErr holds the most recent error returned by
// the condition, if any; polling treats condition errors as transient.
type TimeoutError struct {
	What    string
	Timeout time.Duration
	LastErr error
}

func (e *TimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("timed out after %s waiting for %s (last error: %v)", e.Timeout, e.What, e.LastErr)
	}
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.What)
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// For polls cond once per interval until it returns true, the timeout
// elapses, or ctx is cancelled. The first attempt runs immediately.
// Errors from cond do not abort polling; the last one is carried in
// the TimeoutError.
func For(ctx context.Context, what string, cfg Config, cond func(ctx context.Context) (bool, error)) error {
	_, err := ForValue(ctx, what, cfg, func(ctx context.Context) (struct{}, bool, error) {
		done, err := cond(ctx)
		return struct{}{}, done, err
	})
	return err
}

// ForValue polls sample once per interval and returns the first value
// reported with done=true. Sampling errors are tolerated as transient
// and surface only in the eventual TimeoutError.
func ForValue[T any](ctx context.Context, what string, cfg Config, sample func(ctx context.Context) (T, bool, error)) (T, error) {
	cfg.applyDefaults()

	var zero T
	var lastErr error
	deadline := time.Now().Add(cfg.Timeout)

	for {
		v, done, err := sample(ctx)
		if err != nil {
			lastErr = err
		} else if done {
			return v, nil
		}

		if !time.Now().Add(cfg.Interval).Before(deadline) {
			return zero, &TimeoutError{What: what, Timeout: cfg.Timeout, LastErr: lastErr}
		}

		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return zero, &TimeoutError{What: what, Timeout: cfg.Timeout, LastErr: lastErr}
		case <-time.After(cfg.Interval):
		}
	}
}
