// Package retry re-runs remote calls a fixed number of times with a fixed delay.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/pkg/logger"
	"github.com/heirloom-restoration/workshop/pkg/metrics"
)

// Config holds retry configuration for backend calls.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay is the fixed pause between attempts.
	Delay time.Duration
}

// DefaultConfig returns the retry defaults for backend calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Delay:       time.Second,
	}
}

// Do runs op until it succeeds, fails permanently, ctx ends, or the attempts
// are exhausted. The last error is returned unchanged.
func Do[T any](ctx context.Context, cfg Config, name string, log *logger.Logger, op func(context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	log = logger.OrGlobal(log)

	attempt := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.Delay), uint64(cfg.MaxAttempts-1)),
		ctx,
	)

	result, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil && !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy, func(err error, wait time.Duration) {
		metrics.RetryAttempts.WithLabelValues(name, "retried").Inc()
		log.Debug("retrying backend call",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})

	if err != nil {
		metrics.RetryAttempts.WithLabelValues(name, "failed").Inc()
		log.Error("backend call failed",
			zap.String("operation", name),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
	}
	return result, err
}

// Retryable reports whether err may succeed on another attempt. Client-side
// errors and cancellation are final.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation, apperr.CodeNotFound, apperr.CodeUnauthorized,
		apperr.CodeForbidden, apperr.CodeRateLimited:
		return false
	}
	return true
}
