package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// maxAPIAttempts bounds calls to a model API, including the first.
const maxAPIAttempts = 2

// apiError represents an error from a model API that may or may not be retryable.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// isRetryable returns true for transient errors (rate limit, server errors).
func (e *apiError) isRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// retryBackoff is the pause before attempt n+1.
var retryBackoff = func(attempt int) time.Duration {
	return time.Duration(attempt+1) * 2 * time.Second
}

// withRetry calls fn until it succeeds, fails with a non-retryable apiError,
// or runs out of attempts. Errors are prefixed with provider.
func withRetry[T any](ctx context.Context, provider string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < maxAPIAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var ae *apiError
		if errors.As(err, &ae) && !ae.isRetryable() {
			return zero, fmt.Errorf("%s: %w", provider, err)
		}

		if attempt < maxAPIAttempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(retryBackoff(attempt)):
			}
		}
	}
	return zero, fmt.Errorf("%s: %w", provider, lastErr)
}
