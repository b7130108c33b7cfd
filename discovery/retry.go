package discovery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/taskcache"
	"go.uber.org/zap"
)

var retryableMessages = []string{
	"connection refused",
	"connection reset",
	"network is unreachable",
	"no route to host",
	"temporary failure",
	"timeout",
	"resource temporarily unavailable",
}

// isRetryableError reports whether a failed sweep may succeed if repeated
func isRetryableError(err error) bool {
	if errors.Is(err, taskcache.ErrProbeCancelled) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, taskcache.ErrProbeTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// withRetry runs fn up to attempts times with exponential backoff starting
// at backoff.
func withRetry(ctx context.Context, log logger.Logger, name string, attempts int, backoff time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := backoff << (attempt - 1)
			log.Warn("retrying sweep after backoff",
				zap.String("source", name),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return lastErr
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return err
		}
	}
	return lastErr
}
