package provider

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// retryable reports whether err is worth another attempt. Authentication,
// invalid requests and oversized prompts fail the same way every time.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		// transport errors
		return true
	}
	switch pe.Code {
	case ErrCodeRateLimit, ErrCodeProviderUnavailable, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

// WithRetry calls fn with exponential backoff and full jitter. With
// MaxRetries == 0 fn runs exactly once.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.MaxRetries + 1
	interval := cfg.InitialInterval
	if interval <= 0 {
		interval = time.Second
	}
	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = interval
	}

	for i := 0; i < attempts; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) || i == attempts-1 {
			break
		}

		sleep := interval/2 + time.Duration(rand.Int63n(int64(interval)))
		if cfg.OnRetry != nil {
			cfg.OnRetry(i+1, err, sleep)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}

		interval = time.Duration(math.Min(float64(maxInterval), float64(interval)*cfg.Multiplier))
	}

	return zero, lastErr
}
