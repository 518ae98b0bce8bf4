package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds configuration for retry operations
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsedTime of zero retries forever
	MaxElapsedTime time.Duration
}

// DefaultRetryConfig returns the reconnect policy used by session controllers
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		MaxElapsedTime:  0,
	}
}

// NewBackOff builds an exponential backoff from config
func NewBackOff(config *RetryConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.InitialInterval
	b.MaxInterval = config.MaxInterval
	b.MaxElapsedTime = config.MaxElapsedTime
	b.Reset()
	return b
}

// WithRetry executes an operation with retry logic using exponential backoff,
// giving up when ctx is done
func WithRetry(ctx context.Context, operation func() error, config *RetryConfig) error {
	return backoff.Retry(operation, backoff.WithContext(NewBackOff(config), ctx))
}

// Sleep waits for d or until ctx is done. It reports whether the full delay elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
