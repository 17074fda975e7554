// Package poller contains the client-side halves of the status surfaces: the
// bounded checkout-success poll and the reconnecting admin stream client.
// Both are read-only views over order state; neither ever mutates it.
package poller

import (
	"context"
	"errors"
	"time"

	"bakery-orders/internal/util"

	"go.uber.org/zap"
)

// ErrStillProcessing means the poll window closed without observing payment.
// Callers show a "still processing, check back" state, not an error: the
// payment may still be completing server-side.
var ErrStillProcessing = errors.New("payment confirmation still in flight")

// OrderStatus is the slice of order state the checkout poll cares about
type OrderStatus struct {
	OrderID       int64      `json:"_id"`
	IsPaid        bool       `json:"isPaid"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	PaymentMethod string     `json:"paymentMethod"`
}

// StatusFetcher fetches the current order status once
type StatusFetcher interface {
	FetchStatus(ctx context.Context) (*OrderStatus, error)
}

// StatusFetcherFunc adapts a function to the StatusFetcher interface
type StatusFetcherFunc func(ctx context.Context) (*OrderStatus, error)

func (f StatusFetcherFunc) FetchStatus(ctx context.Context) (*OrderStatus, error) {
	return f(ctx)
}

// StatusPoller polls the order-status endpoint after the provider redirect,
// at a fixed interval up to a bounded number of attempts
type StatusPoller struct {
	fetcher     StatusFetcher
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger
}

// NewStatusPoller creates a new checkout-success poller
func NewStatusPoller(fetcher StatusFetcher, interval time.Duration, maxAttempts int) *StatusPoller {
	return &StatusPoller{
		fetcher:     fetcher,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      util.GetLogger(),
	}
}

// WaitForPayment polls until it observes isPaid, the attempt budget runs
// out, or the context is cancelled. It stops issuing requests the moment
// payment is observed.
func (p *StatusPoller) WaitForPayment(ctx context.Context) (*OrderStatus, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		status, err := p.fetcher.FetchStatus(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("Status poll attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else if status.IsPaid {
			return status, nil
		}

		if attempt == p.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.interval):
		}
	}
	return nil, ErrStillProcessing
}
