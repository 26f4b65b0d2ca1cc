// Package resilience provides retry with backoff and the transient error
// classification the ingestion client retries on.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls retries.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt, so a
	// call makes at most MaxRetries+1 attempts. Zero disables retrying.
	MaxRetries int

	// Delay is the wait before the first retry.
	Delay time.Duration

	// Multiplier scales the delay after each retry. 1.0 keeps it fixed.
	Multiplier float64

	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration

	// JitterFraction adds up to ±JitterFraction of the delay at random.
	JitterFraction float64

	// ShouldRetry overrides IsTransient when set.
	ShouldRetry func(err error) bool

	// OnRetry runs before each retry sleep with the retry number (1-based).
	OnRetry func(retry int, delay time.Duration, err error)
}

// Attempts returns the maximum number of calls the policy allows.
func (p Policy) Attempts() int { return max(p.MaxRetries, 0) + 1 }

// Do calls fn until it succeeds, returns an error that should not be
// retried, the retry budget is spent, or ctx is done. It returns how many
// attempts were made and the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	p = withDefaults(p)
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.Attempts(); attempt++ {
		attempts = attempt
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempts, nil
		}
		if ctx.Err() != nil || !shouldRetry(lastErr) || attempt == p.Attempts() {
			return attempts, lastErr
		}

		delay := Backoff(p, attempt-1)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, lastErr
		case <-timer.C:
		}
	}
	return attempts, lastErr
}

func withDefaults(p Policy) Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 1.0
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

// Backoff returns the delay before retry number retry+1:
// Delay × Multiplier^retry, capped by MaxDelay, then jittered.
func Backoff(p Policy, retry int) time.Duration {
	p = withDefaults(p)
	delay := float64(p.Delay) * math.Pow(p.Multiplier, float64(retry))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.JitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * p.JitterFraction
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry at Warn.
func RetryLogger(logger *zap.Logger, operation string) func(int, time.Duration, error) {
	if logger == nil {
		logger = zap.L()
	}
	return func(retry int, delay time.Duration, err error) {
		logger.Warn("retrying operation",
			zap.String("operation", operation),
			zap.Int("retry", retry),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
}
