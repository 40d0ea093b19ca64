package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	MaxRetries        int
	BackoffType       BackoffType
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// BackoffType defines the type of backoff strategy
type BackoffType int

const (
	LinearBackoff BackoffType = iota
	ExponentialBackoff
	FixedBackoff
)

// DefaultRetryConfig is the blob backend's budget: five attempts in total.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        5,
		BackoffType:       ExponentialBackoff,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ErrRetriesExhausted wraps the last error once the budget is spent.
var ErrRetriesExhausted = errors.New("max retries exceeded")

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, the context
// ends, or MaxRetries attempts have been made. attempt starts at 1.
func Retry(ctx context.Context, config RetryConfig, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		if attempt < config.MaxRetries {
			if err := Sleep(ctx, config.Backoff(attempt)); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w (%d): %w", ErrRetriesExhausted, config.MaxRetries, lastErr)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff is the delay after the given (1-based) failed attempt.
func (config RetryConfig) Backoff(attempt int) time.Duration {
	switch config.BackoffType {
	case ExponentialBackoff:
		delay := time.Duration(float64(config.InitialDelay) * pow(config.BackoffMultiplier, float64(attempt-1)))
		if delay > config.MaxDelay {
			return config.MaxDelay
		}
		return delay
	case LinearBackoff:
		delay := config.InitialDelay * time.Duration(attempt)
		if delay > config.MaxDelay {
			return config.MaxDelay
		}
		return delay
	default:
		return config.InitialDelay
	}
}

// Simple power function for exponential backoff
func pow(base, exp float64) float64 {
	if exp == 0 {
		return 1
	}
	result := base
	for i := 1; i < int(exp); i++ {
		result *= base
	}
	return result
}
