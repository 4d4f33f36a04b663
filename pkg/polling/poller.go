// Package polling implements the client side of the payment status
// contract: a bounded poll loop that checks a transaction's status at a
// fixed interval and gives up after a fixed number of attempts instead
// of looping indefinitely. Frontends that exhaust the attempts show a
// "processing" view and let the webhook settle the payment.
package polling

import (
	"context"
	"time"
)

// Outcome is the terminal result of a poll loop
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	// OutcomeTimeout means the attempt bound was reached while the
	// payment was still pending; not a failure.
	OutcomeTimeout Outcome = "TIMEOUT"
)

// StatusFunc fetches the current payment status for an order. It should
// return one of PENDING, COMPLETED or FAILED.
type StatusFunc func(ctx context.Context) (string, error)

// StatusPoller polls a payment status with a fixed interval and attempt
// bound
type StatusPoller struct {
	Interval    time.Duration
	MaxAttempts int
}

// NewStatusPoller creates a poller with the standard checkout settings:
// a status check every 3 seconds, at most 5 attempts.
func NewStatusPoller() *StatusPoller {
	return &StatusPoller{
		Interval:    3 * time.Second,
		MaxAttempts: 5,
	}
}

// Poll runs the bounded loop. It stops on the first COMPLETED or FAILED
// status, on context cancellation, or after MaxAttempts checks while
// still pending. Fetch errors count as attempts so a dead backend cannot
// extend the loop.
func (p *StatusPoller) Poll(ctx context.Context, fetch StatusFunc) (Outcome, error) {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		status, err := fetch(ctx)
		if err != nil {
			lastErr = err
		} else {
			switch status {
			case "COMPLETED":
				return OutcomeSuccess, nil
			case "FAILED":
				return OutcomeFailed, nil
			}
		}

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return OutcomeTimeout, ctx.Err()
		case <-time.After(p.Interval):
		}
	}

	return OutcomeTimeout, lastErr
}
