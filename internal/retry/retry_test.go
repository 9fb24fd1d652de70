package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDo_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	err := Do(context.Background(), nil, Policy{Attempts: 3}, func(context.Context) error {
		if calls.Add(1) < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_Exhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	err := Do(context.Background(), nil, Policy{Attempts: 2}, func(context.Context) error {
		calls.Add(1)
		return errBoom
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_Permanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	err := Do(context.Background(), nil, Policy{Attempts: 5}, func(context.Context) error {
		calls.Add(1)
		return Permanent(errBoom)
	})
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, int32(1), calls.Load())
	assert.NoError(t, Permanent(nil))
}

func TestDo_BackoffUsesClock(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), clock, Policy{Attempts: 3, Backoff: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond},
			func(context.Context) error {
				calls.Add(1)
				return errBoom
			})
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	assert.Equal(t, int32(1), calls.Load())
	clock.Advance(100 * time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	assert.Equal(t, int32(2), calls.Load())
	clock.Advance(150 * time.Millisecond)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrExhausted)
	case <-time.After(time.Second):
		t.Fatal("retry did not finish")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, clock, Policy{Attempts: 3, Backoff: time.Second}, func(context.Context) error {
			return errBoom
		})
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retry ignored cancellation")
	}
}
