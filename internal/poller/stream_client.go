package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"bakery-orders/internal/util"

	"go.uber.org/zap"
)

// ErrMaxRetries means the stream client exhausted its reconnect budget and
// the user should refresh manually
var ErrMaxRetries = errors.New("stream reconnect attempts exhausted")

// StreamState is the explicit connection state machine of the admin stream
// client: idle → connecting → connected → backoff → connecting → …
type StreamState int

const (
	StateIdle StreamState = iota
	StateConnecting
	StateConnected
	StateBackoff
	StateStopped
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ConnectFunc opens the stream and blocks while it is healthy. The transport
// calls connected() once the stream is established. A nil return means clean
// shutdown; an error means the connection dropped.
type ConnectFunc func(ctx context.Context, connected func()) error

// StreamClient wraps a push-stream transport with bounded exponential-backoff
// reconnection. A successful connection resets the attempt counter.
type StreamClient struct {
	connect     ConnectFunc
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	logger      *zap.Logger

	mu    sync.Mutex
	state StreamState
}

// NewStreamClient creates a new reconnecting stream client
func NewStreamClient(connect ConnectFunc, maxRetries int, baseBackoff, maxBackoff time.Duration) *StreamClient {
	return &StreamClient{
		connect:     connect,
		maxRetries:  maxRetries,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		logger:      util.GetLogger(),
		state:       StateIdle,
	}
}

// State returns the current connection state
func (c *StreamClient) State() StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *StreamClient) setState(s StreamState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run drives the state machine until clean shutdown, context cancellation,
// or the reconnect budget is spent
func (c *StreamClient) Run(ctx context.Context) error {
	attempts := 0

	for {
		c.setState(StateConnecting)

		err := c.connect(ctx, func() {
			attempts = 0
			c.setState(StateConnected)
		})
		if err == nil {
			c.setState(StateIdle)
			return nil
		}
		if ctx.Err() != nil {
			c.setState(StateStopped)
			return ctx.Err()
		}

		attempts++
		if attempts > c.maxRetries {
			c.setState(StateStopped)
			return ErrMaxRetries
		}

		wait := c.backoffFor(attempts)
		c.logger.Warn("Stream dropped, reconnecting",
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err))

		c.setState(StateBackoff)
		select {
		case <-ctx.Done():
			c.setState(StateStopped)
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *StreamClient) backoffFor(attempt int) time.Duration {
	backoff := c.baseBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}
