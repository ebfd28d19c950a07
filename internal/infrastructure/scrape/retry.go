package scrape

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/arzwatch/arzwatch/internal/domain"
)

// RetryPolicy bounds re-attempts for transient fetch failures. Exponential
// backoff starting at BaseDelay, capped at MaxDelay, with jitter so parallel
// source workers do not hammer a site in lockstep.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   4 * time.Second,
		MaxDelay:    10 * time.Second,
		Jitter:      time.Second,
	}
}

// Do runs op until it succeeds, returns a non-retriable error, or the
// attempt budget is spent. Parse and configuration errors abort immediately.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	backoff := retry.NewExponential(p.BaseDelay)
	if p.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(p.MaxDelay, backoff)
	}
	if p.Jitter > 0 {
		backoff = retry.WithJitter(p.Jitter, backoff)
	}
	if p.MaxAttempts > 0 {
		backoff = retry.WithMaxRetries(uint64(p.MaxAttempts-1), backoff)
	}

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsRetriable(err) {
			return err
		}
		slog.Warn("Transient failure, will retry", "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}
