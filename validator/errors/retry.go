package errors

import (
	"context"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RetryableErrors []ErrorCode
}

// DefaultRetryConfig retries transient ledger failures three times starting at one second.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		RetryableErrors: []ErrorCode{
			ErrCodeNetwork,
			ErrCodeConnectionLost,
			ErrCodeSyncTimeout,
		},
	}
}

// delay returns the wait before attempt n+1, n starting at 1.
func (c *RetryConfig) delay(n int) time.Duration {
	d := c.InitialDelay
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * c.Multiplier)
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return d
}

func (c *RetryConfig) retryable(err error) bool {
	code := CodeOf(err)
	for _, rc := range c.RetryableErrors {
		if code == rc {
			return true
		}
	}
	return IsRetryable(err)
}

// RetryFunc is a function that can be retried
type RetryFunc func() error

// RetryWithConfig calls fn until it succeeds, returns a non-retryable error or runs
// out of attempts. Only startup paths use it; the round loop never retries within a round.
func RetryWithConfig(ctx context.Context, fn RetryFunc, config *RetryConfig) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !config.retryable(lastErr) {
			return lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}

		timer := time.NewTimer(config.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return WrapValidatorError(lastErr, ErrCodeUnexpected, "", "maximum retry attempts exceeded").
		WithContext("attempts", config.MaxAttempts)
}

// Retry retries a function with default configuration
func Retry(ctx context.Context, fn RetryFunc) error {
	return RetryWithConfig(ctx, fn, DefaultRetryConfig())
}
