// internal/orchestrator/retry.go
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const retryAttempts = 3

// retryTransient runs fn up to retryAttempts times with doubling backoff,
// retrying only errors classified as transient. Any other error, or context
// cancellation, stops immediately.
func retryTransient(ctx context.Context, logger *zap.Logger, step string, wait time.Duration, fn func() error) error {

	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt == retryAttempts {
			break
		}

		logger.Warn("transient failure, retrying",
			zap.String("step", step),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
