package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default quota tracker configuration values.
const (
	DefaultQuotaBudget = 60
	DefaultQuotaWindow = time.Minute
)

// Redis key prefix for quota counters.
const keyPrefixQuota = "quota:requests:"

// ErrWaitCancelled is returned when the context is cancelled while waiting
// for quota.
var ErrWaitCancelled = errors.New("context cancelled while waiting for request quota")

// QuotaTracker coordinates aggregate request volume across processes using
// Redis. Several harvester and backfill workers may run against the same
// seller account; the tracker keeps their combined call rate under the
// account-level quota with a fixed-window counter.
type QuotaTracker struct {
	redis  redis.Cmdable
	budget int
	window time.Duration
	keyTTL time.Duration
	now    func() time.Time
}

// QuotaTrackerConfig holds configuration for the quota tracker.
type QuotaTrackerConfig struct {
	// Redis is the client used for coordination. Required.
	Redis redis.Cmdable

	// Budget is the number of requests allowed per window. Default: 60.
	Budget int

	// Window is the counting window. Default: 1m.
	Window time.Duration
}

// Validate checks if the configuration is valid.
func (c *QuotaTrackerConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.Budget < 0 {
		return errors.New("budget cannot be negative")
	}
	if c.Window < 0 {
		return errors.New("window cannot be negative")
	}
	return nil
}

// NewQuotaTracker creates a tracker with the given configuration.
func NewQuotaTracker(cfg *QuotaTrackerConfig) (*QuotaTracker, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	budget := cfg.Budget
	if budget == 0 {
		budget = DefaultQuotaBudget
	}
	window := cfg.Window
	if window == 0 {
		window = DefaultQuotaWindow
	}

	return &QuotaTracker{
		redis:  cfg.Redis,
		budget: budget,
		window: window,
		keyTTL: 2 * window,
		now:    time.Now,
	}, nil
}

func (t *QuotaTracker) windowKey(at time.Time) string {
	return fmt.Sprintf("%s%d", keyPrefixQuota, at.UnixNano()/int64(t.window))
}

// TryConsume attempts to consume one request from the current window.
// It returns whether the request is allowed and, when denied, how long to
// wait until the window rolls over.
func (t *QuotaTracker) TryConsume(ctx context.Context) (bool, time.Duration, error) {
	now := t.now()
	key := t.windowKey(now)

	count, err := t.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment quota counter: %w", err)
	}
	// TTL set on every increment; a fixed-window key only needs to survive
	// its own window plus a read buffer.
	t.redis.Expire(ctx, key, t.keyTTL)

	if count <= int64(t.budget) {
		return true, 0, nil
	}

	// Over budget. Refund and report time until the next window.
	t.redis.Decr(ctx, key)
	windowStart := now.Truncate(t.window)
	wait := windowStart.Add(t.window).Sub(now)
	return false, wait, nil
}

// Wait blocks until quota is available or the context is cancelled.
func (t *QuotaTracker) Wait(ctx context.Context) error {
	for {
		allowed, waitTime, err := t.TryConsume(ctx)
		if err != nil {
			// Redis unavailability must not stall acquisitions; the local
			// route limiter still paces this process.
			return nil
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ErrWaitCancelled
		case <-time.After(waitTime):
		}
	}
}

// Usage returns the consumed and total budget of the current window.
func (t *QuotaTracker) Usage(ctx context.Context) (used, budget int, err error) {
	count, err := t.redis.Get(ctx, t.windowKey(t.now())).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, t.budget, fmt.Errorf("failed to read quota counter: %w", err)
	}
	return count, t.budget, nil
}
