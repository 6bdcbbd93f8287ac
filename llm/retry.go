package llm

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig holds retry configuration for AI requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per endpoint.
	MaxAttempts int

	// BackoffBase is the initial backoff duration for transient failures.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration

	// RateLimitBackoff is the initial backoff after a rate-limit response.
	// Zero falls back to BackoffBase.
	RateLimitBackoff time.Duration
}

// DefaultRetryConfig returns sensible retry defaults for AI requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
		RateLimitBackoff:  10 * time.Second,
	}
}

// Decision tells Retry what to do with a failed attempt.
type Decision int

const (
	// Stop gives up and returns the error.
	Stop Decision = iota

	// Backoff retries after the regular backoff.
	Backoff

	// RateLimited retries after the rate-limit backoff.
	RateLimited
)

// Classifier maps an attempt error to a retry decision.
type Classifier func(error) Decision

// ClassifyError is the default classifier: fatal errors stop, rate-limit errors
// use the rate-limit backoff, other transient errors use the regular backoff and
// anything unclassified stops.
func ClassifyError(err error) Decision {
	switch {
	case IsFatal(err):
		return Stop
	case IsRateLimited(err):
		return RateLimited
	case IsTransient(err):
		return Backoff
	default:
		return Stop
	}
}

// Retry calls fn until it succeeds, the classifier says stop, the attempts run
// out or ctx is done. It returns the number of attempts made and the last error.
func Retry(ctx context.Context, cfg RetryConfig, classify Classifier, fn func(context.Context) error) (int, error) {
	if classify == nil {
		classify = ClassifyError
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		decision := classify(lastErr)
		if decision == Stop || attempt == maxAttempts {
			return attempt, lastErr
		}

		wait := cfg.backoff(attempt, decision == RateLimited)
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(wait):
		}
	}
	return maxAttempts, lastErr
}

// backoff computes exponential backoff duration with +/- 25% jitter.
func (cfg RetryConfig) backoff(attempt int, rateLimited bool) time.Duration {
	base := cfg.BackoffBase
	if rateLimited && cfg.RateLimitBackoff > 0 {
		base = cfg.RateLimitBackoff
	}

	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= cfg.BackoffMultiplier
	}

	backoff := time.Duration(float64(base) * multiplier)
	if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}
