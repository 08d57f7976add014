package rpc

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/goran-ethernal/DIDIndexor/internal/common"
	"github.com/goran-ethernal/DIDIndexor/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockNetError implements net.Error for testing
type mockNetError struct {
	msg     string
	timeout bool
}

func (e *mockNetError) Error() string   { return e.msg }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return false }

func fastRetryConfig(attempts int) *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    common.NewDuration(5 * time.Millisecond),
		MaxBackoff:        common.NewDuration(20 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil error", err: nil, retryable: false},
		{name: "network error", err: &mockNetError{msg: "network timeout", timeout: true}, retryable: true},
		{name: "connection refused", err: syscall.ECONNREFUSED, retryable: true},
		{name: "wrapped connection reset", err: fmt.Errorf("dial: %w", syscall.ECONNRESET), retryable: true},
		{name: "broken pipe", err: syscall.EPIPE, retryable: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, retryable: true},
		{name: "canceled", err: context.Canceled, retryable: false},
		{name: "rate limited", err: errors.New("429 Too Many Requests"), retryable: true},
		{name: "service unavailable", err: errors.New("503 Service Unavailable: "), retryable: true},
		{name: "gateway timeout", err: errors.New("504 Gateway Timeout"), retryable: true},
		{name: "pool exhausted", err: errors.New("connection pool exhausted"), retryable: true},
		{name: "unauthorized", err: errors.New("401 Unauthorized"), retryable: false},
		{name: "execution reverted", err: errors.New("execution reverted"), retryable: false},
		{name: "invalid params", err: errors.New("invalid argument 0: hex string without 0x prefix"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, retryableError(tt.err))
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := &config.RetryConfig{
		InitialBackoff:    common.NewDuration(100 * time.Millisecond),
		MaxBackoff:        common.NewDuration(1 * time.Second),
		BackoffMultiplier: 2.0,
	}

	require.Zero(t, calculateBackoff(1, cfg), "first attempt is not delayed")

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{attempt: 2, base: 100 * time.Millisecond},
		{attempt: 3, base: 200 * time.Millisecond},
		{attempt: 4, base: 400 * time.Millisecond},
		{attempt: 10, base: 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			for range 20 {
				backoff := calculateBackoff(tt.attempt, cfg)
				assert.GreaterOrEqual(t, backoff, tt.base*3/4)
				assert.LessOrEqual(t, backoff, tt.base*5/4)
			}
		})
	}
}

func TestRetryWithBackoff(t *testing.T) {
	transient := &mockNetError{msg: "i/o timeout", timeout: true}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), fastRetryConfig(5), "test", func() error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		})

		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		calls := 0
		permanent := errors.New("execution reverted")
		err := retryWithBackoff(context.Background(), fastRetryConfig(5), "test", func() error {
			calls++
			return permanent
		})

		require.ErrorIs(t, err, permanent)
		require.NotErrorIs(t, err, ErrRetriesExhausted)
		require.Equal(t, 1, calls)
	})

	t.Run("exhausted retries are reported", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), fastRetryConfig(3), "test", func() error {
			calls++
			return transient
		})

		require.ErrorIs(t, err, ErrRetriesExhausted)
		require.ErrorIs(t, err, transient)
		require.Equal(t, 3, calls)
	})

	t.Run("cancelled context aborts the backoff", func(t *testing.T) {
		cfg := fastRetryConfig(5)
		cfg.InitialBackoff = common.NewDuration(time.Minute)
		cfg.MaxBackoff = common.NewDuration(time.Minute)

		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := retryWithBackoff(ctx, cfg, "test", func() error {
			calls++
			cancel()
			return transient
		})

		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, calls)
	})

	t.Run("nil config runs once", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), nil, "test", func() error {
			calls++
			return transient
		})

		require.ErrorIs(t, err, transient)
		require.Equal(t, 1, calls)
	})
}
