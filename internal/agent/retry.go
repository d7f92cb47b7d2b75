package agent

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// retryController wraps a single action's execution with a bounded attempt
// budget. It distinguishes non-retryable failures (surfaced immediately) from
// transient execution failures (retried up to maxRetries additional times).
type retryController struct {
	maxRetries int
	delay      time.Duration
	timeout    time.Duration
	logger     *zap.Logger
}

// do runs fn up to maxRetries+1 times, stopping on first success. A single
// attempt is treated as atomic: cancellation is only observed between
// attempts, never mid-attempt, though each attempt runs under its own
// timeout when one is configured. The detail of the last attempt is returned
// alongside the attempt count and final error.
func (r *retryController) do(ctx context.Context, name string, fn func(context.Context) (interface{}, error)) (interface{}, int, error) {
	var (
		detail  interface{}
		lastErr error
	)

	attempts := 0
	for attempts <= r.maxRetries {
		attempts++

		attemptCtx := ctx
		var cancel context.CancelFunc
		if r.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		detail, lastErr = fn(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if lastErr == nil {
			return detail, attempts, nil
		}

		r.logger.Warn("Attempt failed.",
			zap.String("action", name),
			zap.Int("attempt", attempts),
			zap.Int("budget", r.maxRetries+1),
			zap.Error(lastErr),
		)

		if errors.Is(lastErr, ErrNonRetryable) || errors.Is(lastErr, ErrInvalidParameters) {
			return detail, attempts, lastErr
		}
		if attempts > r.maxRetries {
			break
		}

		// Inter-attempt delay, interruptible by cancellation.
		if err := sleep(ctx, r.delay); err != nil {
			return detail, attempts, err
		}
	}
	return detail, attempts, lastErr
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
