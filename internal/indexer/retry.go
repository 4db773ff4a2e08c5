package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// retryPolicy retries RPC reads with doubling backoff, capped at maxRetryDelay.
type retryPolicy struct {
	attempts int
	delay    time.Duration
	logger   *zap.Logger
}

func newRetryPolicy(maxRetries int, delay time.Duration, logger *zap.Logger) retryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return retryPolicy{attempts: maxRetries + 1, delay: delay, logger: logger}
}

// do runs fn until it succeeds, the attempts run out or ctx ends. op names
// the call in logs and in the final error.
func (p retryPolicy) do(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := p.delay
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.attempts {
			if p.attempts > 1 {
				return fmt.Errorf("%s after %d attempts: %w", op, attempt, err)
			}
			return err
		}
		p.logger.Warn("retrying rpc call",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}
