package order

import (
	"context"
	"time"
)

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 2}
}

// retryWithBackoff calls fn until it succeeds, the attempts run out or ctx
// is done.
func retryWithBackoff[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	backoff := cfg.BaseDelay
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt < cfg.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * cfg.Multiplier)
				if cfg.MaxDelay > 0 && backoff > cfg.MaxDelay {
					backoff = cfg.MaxDelay
				}
			}
		}
	}
	return zero, lastErr
}
