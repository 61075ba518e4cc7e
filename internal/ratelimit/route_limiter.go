// Package ratelimit provides outbound request pacing for the Reports API:
// per-route-class token buckets within a process and an optional
// Redis-coordinated request quota shared across processes.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RouteClass identifies a logical group of API routes that share one rate
// budget.
type RouteClass string

const (
	// RouteCreateReport covers report creation requests.
	RouteCreateReport RouteClass = "createReport"
	// RouteReportStatus covers report status polls.
	RouteReportStatus RouteClass = "reportStatus"
	// RouteFetchDocument covers document reference and download requests.
	RouteFetchDocument RouteClass = "fetchDocument"
)

// RouteLimits configures the token bucket for one route class.
type RouteLimits struct {
	RPS   float64
	Burst int
}

// RouteLimiter manages one token bucket per route class. Budget counters are
// shared by every caller using the same class.
type RouteLimiter struct {
	mu       sync.RWMutex
	limiters map[RouteClass]*rate.Limiter
	defaults RouteLimits
}

// NewRouteLimiter creates a limiter with per-class limits. Classes not listed
// fall back to the provided defaults.
func NewRouteLimiter(limits map[RouteClass]RouteLimits, defaults RouteLimits) *RouteLimiter {
	rl := &RouteLimiter{
		limiters: make(map[RouteClass]*rate.Limiter, len(limits)),
		defaults: defaults,
	}
	for class, l := range limits {
		rl.limiters[class] = rate.NewLimiter(rate.Limit(l.RPS), l.Burst)
	}
	return rl
}

func (rl *RouteLimiter) limiter(class RouteClass) *rate.Limiter {
	rl.mu.RLock()
	limiter, ok := rl.limiters[class]
	rl.mu.RUnlock()
	if ok {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	// Double-check in case another goroutine created it
	if limiter, ok := rl.limiters[class]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(rl.defaults.RPS), rl.defaults.Burst)
	rl.limiters[class] = limiter
	return limiter
}

// Wait blocks until the route class has budget for one request or the context
// is cancelled. Calls suspend rather than fail when no budget is available.
func (rl *RouteLimiter) Wait(ctx context.Context, class RouteClass) error {
	return rl.limiter(class).Wait(ctx)
}
