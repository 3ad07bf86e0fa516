package apperr

import (
	"context"
	"time"

	"github.com/patlar104/GlobalTranslation/pkg/log"
)

// RetryPolicy bounds automatic retries of transient failures.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// DefaultRetryPolicy is 3 attempts with doubling backoff: 1s, 2s, 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
	}
}

// WithRetry runs fn, retrying retryable failures with exponential backoff.
// Non-retryable failures and exhausted attempts return a classified error
// carrying a user-facing message.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := policy.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		errorType := Classify(err)
		if !IsRetryable(errorType) {
			return zero, Wrap(errorType, op, UserMessage(errorType), err)
		}
		if attempt == attempts {
			break
		}

		log.Warn("%s failed (attempt %d/%d), retrying in %v: %v", op, attempt, attempts, delay, err)
		select {
		case <-ctx.Done():
			return zero, Wrap(Classify(ctx.Err()), op, UserMessage(Classify(ctx.Err())), ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	errorType := Classify(lastErr)
	return zero, Wrap(errorType, op, UserMessage(errorType), lastErr)
}
