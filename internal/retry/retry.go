// Package retry provides the bounded exponential backoff used for broker calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"optionsBot/internal/ports"
)

// ErrExhausted marks a call that kept failing transiently until the attempt cap.
var ErrExhausted = errors.New("retries exhausted")

// Policy configures a bounded retry.
type Policy struct {
	MaxAttempts int
	Min         time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      bool
}

// DefaultPolicy is three attempts starting at 500ms.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Min: 500 * time.Millisecond, Max: 5 * time.Second, Factor: 2}
}

// Backoff returns a fresh backoff for the policy.
func (p Policy) Backoff() *backoff.Backoff {
	factor := p.Factor
	if factor <= 0 {
		factor = 2
	}
	return &backoff.Backoff{Min: p.Min, Max: p.Max, Factor: factor, Jitter: p.Jitter}
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.Min <= 0 {
		return 0
	}
	return p.Backoff().ForAttempt(float64(attempt))
}

// Do calls fn until it succeeds, fails with a non-retryable error, the
// attempt cap is reached or ctx is done. It returns the number of attempts.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := p.Backoff()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !ports.IsRetryable(lastErr) || ports.IsAmbiguous(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}
		if err := sleep(ctx, b.Duration()); err != nil {
			return attempt, fmt.Errorf("%w: %v", ports.ErrContextCanceled, lastErr)
		}
	}
	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
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
