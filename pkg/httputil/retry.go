// Package httputil provides shared HTTP plumbing: retry with exponential
// backoff and a standard client factory used by all integration clients.
package httputil

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"
)

// DefaultTimeout is the per-request timeout applied to integration clients.
const DefaultTimeout = 15 * time.Second

// RetryableError wraps an error to indicate it should trigger a retry.
// Wrap transient failures (network timeouts, 5xx responses, rate limits)
// with this type so that [Retry] knows to attempt the operation again.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as a RetryableError. Returns nil for nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is wrapped with RetryableError.
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}

// Retry executes fn up to attempts times with jittered exponential backoff.
// Only errors wrapped with [RetryableError] are retried; other errors are
// returned immediately. The delay doubles after each failed attempt, with
// random jitter of up to half the current delay added to avoid thundering
// herds against rate-limited services.
// Returns the last error if all attempts fail, or ctx.Err() if cancelled.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var lastErr error

	for i := range attempts {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !IsRetryable(err) {
			return err
		}

		if i < attempts-1 {
			jitter := time.Duration(rand.Int63n(int64(delay/2) + 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay + jitter):
				delay *= 2
			}
		}
	}
	return lastErr
}

// RetryWithBackoff is a convenience wrapper around [Retry] with the defaults
// used across the pipeline: 3 attempts with 500ms initial delay.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return Retry(ctx, 3, 500*time.Millisecond, fn)
}

// NewClient creates an HTTP client with the standard integration timeout.
func NewClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}
