package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamClientCleanShutdown(t *testing.T) {
	c := NewStreamClient(func(ctx context.Context, connected func()) error {
		connected()
		return nil
	}, 3, time.Millisecond, 10*time.Millisecond)

	err := c.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateIdle, c.State())
}

func TestStreamClientExhaustsRetryBudget(t *testing.T) {
	attempts := 0
	c := NewStreamClient(func(ctx context.Context, connected func()) error {
		attempts++
		return errors.New("dial refused")
	}, 3, time.Millisecond, 10*time.Millisecond)

	err := c.Run(context.Background())

	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.Equal(t, StateStopped, c.State())
	// Initial attempt plus three retries
	assert.Equal(t, 4, attempts)
}

func TestStreamClientConnectionResetsAttempts(t *testing.T) {
	calls := 0
	c := NewStreamClient(func(ctx context.Context, connected func()) error {
		calls++
		if calls <= 3 {
			// Never establishes, burns retries
			return errors.New("dial refused")
		}
		if calls == 4 {
			// Establishes, then drops; the retry budget must be fresh again
			connected()
			return errors.New("stream dropped")
		}
		connected()
		return nil
	}, 3, time.Millisecond, 10*time.Millisecond)

	err := c.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
}

func TestStreamClientContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewStreamClient(func(ctx context.Context, connected func()) error {
		cancel()
		return errors.New("dial refused")
	}, 10, time.Hour, time.Hour)

	err := c.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateStopped, c.State())
}

func TestStreamClientBackoffDoubling(t *testing.T) {
	c := NewStreamClient(nil, 10, 100*time.Millisecond, time.Second)

	assert.Equal(t, 100*time.Millisecond, c.backoffFor(1))
	assert.Equal(t, 200*time.Millisecond, c.backoffFor(2))
	assert.Equal(t, 400*time.Millisecond, c.backoffFor(3))
	assert.Equal(t, 800*time.Millisecond, c.backoffFor(4))
	// Capped at the configured ceiling
	assert.Equal(t, time.Second, c.backoffFor(5))
	assert.Equal(t, time.Second, c.backoffFor(10))
}

func TestStreamStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "backoff", StateBackoff.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
