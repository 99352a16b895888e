package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsBot/internal/ports"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Min: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	n, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return ports.Retryable("submit", ports.ErrRateLimited)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnRejection(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), func(ctx context.Context, attempt int) error {
		calls++
		return fmt.Errorf("place order: %w", ports.ErrInsufficientFunds)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, ports.IsRejected(err))
	assert.False(t, errors.Is(err, ErrExhausted))
}

func TestDo_StopsOnAmbiguousTimeout(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), func(ctx context.Context, attempt int) error {
		calls++
		return fmt.Errorf("submit: %w", context.DeadlineExceeded)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a submit that may have landed must not be blindly repeated")
}

func TestDo_Exhausted(t *testing.T) {
	_, err := Do(context.Background(), fastPolicy(2), func(ctx context.Context, attempt int) error {
		return ports.ErrExchangeUnavailable
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, ports.ErrExchangeUnavailable)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxAttempts: 3, Min: time.Second, Max: time.Second}
	n, err := Do(ctx, p, func(ctx context.Context, attempt int) error {
		return ports.ErrConnectionFailed
	})
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}
	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, time.Second, p.Delay(10))
	assert.Equal(t, time.Duration(0), Policy{}.Delay(3))
}
