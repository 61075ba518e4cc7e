package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayExponentialPattern(t *testing.T) {
	cfg := &Config{
		MaxAttempts:  8,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, 1*time.Second, cfg.Delay(1))
	assert.Equal(t, 2*time.Second, cfg.Delay(2))
	assert.Equal(t, 4*time.Second, cfg.Delay(3))
	assert.Equal(t, 32*time.Second, cfg.Delay(6))
	assert.Equal(t, 60*time.Second, cfg.Delay(7), "delay caps at MaxDelay")
	assert.Equal(t, 60*time.Second, cfg.Delay(20))
}

func TestDelayJitterBounds(t *testing.T) {
	cfg := DefaultConfig()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		base := float64(time.Second) * pow(cfg.Multiplier, attempt-1)
		if base > float64(cfg.MaxDelay) {
			base = float64(cfg.MaxDelay)
		}
		for i := 0; i < 50; i++ {
			delay := cfg.Delay(attempt)
			assert.GreaterOrEqual(t, float64(delay), base, "jitter only ever adds")
			assert.LessOrEqual(t, float64(delay), base*(1+cfg.Jitter))
		}
	}
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func TestDelaysStrictlyIncreaseUntilCap(t *testing.T) {
	cfg := DefaultConfig()

	// With a doubling base and jitter at most 20% of the base, each delay
	// exceeds the previous one until the cap is reached.
	prev := time.Duration(0)
	for attempt := 1; attempt <= 7; attempt++ {
		delay := cfg.Delay(attempt)
		assert.Greater(t, delay, prev, "attempt %d", attempt)
		prev = delay
	}
}

func TestSleep(t *testing.T) {
	t.Run("completes", func(t *testing.T) {
		err := Sleep(context.Background(), time.Millisecond)
		assert.NoError(t, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Sleep(ctx, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDo(t *testing.T) {
	fastCfg := &Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastCfg, func(_ context.Context, attempt int) error {
			calls++
			assert.Equal(t, calls, attempt)
			if attempt < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error on exhaustion", func(t *testing.T) {
		wantErr := errors.New("persistent")
		calls := 0
		err := Do(context.Background(), fastCfg, func(_ context.Context, _ int) error {
			calls++
			return wantErr
		})
		assert.ErrorIs(t, err, wantErr)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Do(ctx, fastCfg, func(_ context.Context, _ int) error {
			calls++
			cancel()
			return errors.New("transient")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
