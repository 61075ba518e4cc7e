// Package retry provides the exponential backoff policy shared by every
// outbound call path.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // Maximum number of attempts, including the first
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
	// Jitter is the fraction of the computed delay added as random noise,
	// e.g. 0.2 adds up to 20%. Zero disables jitter.
	Jitter float64
}

// DefaultConfig returns the default retry configuration.
// Pattern: 1s, 2s, 4s, 8s, ... capped at 60s, up to 8 attempts.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  8,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Delay returns the backoff delay preceding the given retry attempt
// (attempt 1 = first retry). The exponential component is deterministic and
// strictly increasing until the cap; jitter only ever adds on top of it.
func (c *Config) Delay(attempt int) time.Duration {
	base := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if base > float64(c.MaxDelay) {
		base = float64(c.MaxDelay)
	}
	delay := base
	if c.Jitter > 0 {
		delay += base * c.Jitter * rand.Float64()
	}
	return time.Duration(delay)
}

// Sleep waits for the given delay or until the context is cancelled,
// whichever comes first.
func Sleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Func is an operation that can be retried. The attempt number starts at 1.
type Func func(ctx context.Context, attempt int) error

// Do executes fn with exponential backoff until it succeeds, the attempt
// budget is exhausted, or the context is cancelled. It returns the last
// error on failure.
func Do(ctx context.Context, config *Config, fn Func) error {
	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := fn(ctx, attempt); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == config.MaxAttempts {
			break
		}
		if err := Sleep(ctx, config.Delay(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}
