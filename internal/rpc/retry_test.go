package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/origin-gov/governance-listener/internal/common"
	"github.com/origin-gov/governance-listener/pkg/config"
)

func fastRetryConfig(attempts int) *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       attempts,
		Backoff:           common.NewDuration(time.Millisecond),
		MaxBackoff:        common.NewDuration(5 * time.Millisecond),
		BackoffMultiplier: 1.0,
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(5), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("request timeout")
		}

		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(3), "test", func() error {
		calls++

		return errors.New("503 service unavailable")
	})

	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.Contains(t, err.Error(), "all 3 attempts failed")
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(5), "test", func() error {
		calls++

		return errors.New("invalid argument")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryWithoutConfigRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retryWithBackoff(context.Background(), nil, "test", func() error {
		calls++

		return errors.New("request timeout")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryWithBackoff(ctx, fastRetryConfig(5), "test", func() error {
		return errors.New("request timeout")
	})

	require.Error(t, err)
	require.Contains(t, err.Error(), "context cancelled")
}

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	cfg := &config.RetryConfig{
		Backoff:           common.NewDuration(100 * time.Millisecond),
		MaxBackoff:        common.NewDuration(time.Second),
		BackoffMultiplier: 2.0,
	}

	// first attempt has no delay
	require.Equal(t, time.Duration(0), calculateBackoff(1, cfg))

	// subsequent delays stay within the jittered envelope and the cap
	for attempt := 2; attempt <= 10; attempt++ {
		backoff := calculateBackoff(attempt, cfg)
		require.GreaterOrEqual(t, backoff, time.Duration(0))
		require.LessOrEqual(t, backoff, time.Duration(float64(cfg.MaxBackoff.Duration)*1.25))
	}
}

func TestCalculateBackoffFixedMultiplier(t *testing.T) {
	t.Parallel()

	cfg := &config.RetryConfig{
		Backoff:           common.NewDuration(time.Second),
		MaxBackoff:        common.NewDuration(30 * time.Second),
		BackoffMultiplier: 1.0,
	}

	// with multiplier 1.0 every delay stays around the base backoff
	for attempt := 2; attempt <= 5; attempt++ {
		backoff := calculateBackoff(attempt, cfg)
		require.GreaterOrEqual(t, backoff, 750*time.Millisecond)
		require.LessOrEqual(t, backoff, 1250*time.Millisecond)
	}
}

func TestRetryableError(t *testing.T) {
	t.Parallel()

	retryable := []error{
		&net.DNSError{IsTimeout: true},
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.EPIPE,
		errors.New("request timeout"),
		errors.New("context deadline exceeded"),
		errors.New("429 Too Many Requests"),
		errors.New("rate limit exceeded"),
		errors.New("502 Bad Gateway"),
		errors.New("service unavailable"),
		fmt.Errorf("wrapped: %w", syscall.ECONNRESET),
	}
	for _, err := range retryable {
		require.True(t, retryableError(err), "expected retryable: %v", err)
	}

	permanent := []error{
		nil,
		errors.New("invalid argument"),
		errors.New("execution reverted"),
		errors.New("method not found"),
	}
	for _, err := range permanent {
		require.False(t, retryableError(err), "expected non-retryable: %v", err)
	}
}
