// Package retry provides the resilience primitives shared by every network
// call in the aggregation engine: bounded retry with exponential backoff,
// deadline enforcement, and inter-call pacing.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/wallet-scanner/internal/errors"
	"github.com/wallet-scanner/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts int           // Total attempts including the first call
	BaseDelay   time.Duration // Delay before the first retry
	Multiplier  float64       // Multiplier for exponential backoff
}

// DefaultConfig returns the default retry policy: 3 total attempts with a
// pure exponential backoff of 1.5s, 3s between them.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		BaseDelay:   1500 * time.Millisecond,
		Multiplier:  2.0,
	}
}

// sleepFn is swapped out by tests to observe backoff delays.
var sleepFn = sleepContext

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithRetry executes fn, retrying only on transient (rate-limit or timeout
// shaped) failures. Non-transient errors propagate immediately after a single
// invocation.
func WithRetry(ctx context.Context, cfg *Config, fn func(ctx context.Context) error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.WithField("attempts", attempt+1).Debug("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !errors.IsTransient(err) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoffDelay(cfg, attempt)
		logger.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"error":   err.Error(),
		}).Warn("transient provider failure, backing off before retry")

		if err := sleepFn(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// backoffDelay returns baseDelay * multiplier^attempt for the given failed
// attempt index (0-based).
func backoffDelay(cfg *Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= cfg.Multiplier
	}
	return time.Duration(delay)
}

// WithDeadline runs fn under its own deadline. When the deadline fires first
// the derived context is cancelled, so the in-flight call is actually stopped
// rather than left to burn provider quota, and a timeout-classified error is
// returned.
func WithDeadline[T any](ctx context.Context, limit time.Duration, provider string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.IsTimeout(out.err) {
			return out.value, errors.NewProviderTimeoutError(provider)
		}
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, errors.NewProviderTimeoutError(provider)
		}
		return zero, ctx.Err()
	}
}

// Pace blocks for the given duration, or until the context is cancelled.
// This is plain throttling between sequential calls to one rate-limited
// endpoint, not retry logic.
func Pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return sleepFn(ctx, d)
}
