package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/goran-ethernal/DIDIndexor/pkg/config"
)

// ErrRetriesExhausted is wrapped into the error returned once every attempt of a
// retryable operation has failed.
var ErrRetriesExhausted = errors.New("rpc retries exhausted")

var transientMarkers = []string{
	// timeouts
	"timeout", "deadline exceeded",
	// rate limiting
	"429", "too many requests", "rate limit",
	// temporary server errors
	"502", "503", "504", "bad gateway", "service unavailable", "gateway timeout",
	// connection pool exhausted
	"connection pool", "no available connection",
}

// retryableError checks if an error should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation by the caller is never transient.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(errStr, marker) {
			return true
		}
	}

	return false
}

// calculateBackoff computes the backoff duration for a given attempt with ±25% jitter.
// The first attempt is never delayed.
func calculateBackoff(attempt int, cfg *config.RetryConfig) time.Duration {
	if attempt <= 1 {
		return 0
	}

	backoff := float64(cfg.InitialBackoff.Duration) * math.Pow(cfg.BackoffMultiplier, float64(attempt-2))
	backoff = math.Min(backoff, float64(cfg.MaxBackoff.Duration))

	jitterRange := backoff * 0.25
	backoff += (rand.Float64() * 2 * jitterRange) - jitterRange //nolint:gosec

	return time.Duration(math.Max(backoff, 0))
}

// retryWithBackoff executes fn until it succeeds, returns a non-retryable error,
// or MaxAttempts is reached. It respects context cancellation and deadlines.
func retryWithBackoff(ctx context.Context, cfg *config.RetryConfig, operation string, fn func() error) error {
	if cfg == nil {
		return fn()
	}

	var lastErr error
	startTime := time.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if wait := calculateBackoff(attempt, cfg); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context cancelled during backoff (attempt %d/%d): %w",
					attempt, cfg.MaxAttempts, ctx.Err())
			}
			RPCRetryInc(operation)
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before attempt %d: %w", attempt, err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryableError(err) {
			return fmt.Errorf("non-retryable error on attempt %d/%d: %w", attempt, cfg.MaxAttempts, err)
		}
	}

	return fmt.Errorf("%w: %s failed %d times in %v (last error: %w)",
		ErrRetriesExhausted, operation, cfg.MaxAttempts, time.Since(startTime), lastErr)
}
