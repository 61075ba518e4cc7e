// Package bootstrap wires the acquisition engine from loaded configuration.
// All entry points (server, harvester, backfill) build the same stack:
// credentials, token manager, rate limiting, transport, API client, acquirer
// and sink.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/report-harvester/internal/auth"
	"github.com/report-harvester/internal/config"
	"github.com/report-harvester/internal/logging"
	"github.com/report-harvester/internal/ratelimit"
	"github.com/report-harvester/internal/report"
	"github.com/report-harvester/internal/retry"
	"github.com/report-harvester/internal/sink"
	"github.com/report-harvester/internal/spapi"
	"github.com/report-harvester/internal/transport"
)

// Engine bundles the wired acquisition components.
type Engine struct {
	Registry *report.Registry
	Acquirer *report.Acquirer
	Sink     sink.Sink

	redisClient *redis.Client
}

// Close releases held connections.
func (e *Engine) Close() {
	if e.redisClient != nil {
		_ = e.redisClient.Close()
	}
}

// BuildEngine constructs the acquisition engine from configuration.
func BuildEngine(cfg *config.Config) (*Engine, error) {
	logger := logging.GetGlobalLogger()

	registry, err := report.NewRegistry(&cfg.Reports)
	if err != nil {
		return nil, err
	}

	tokenManager := auth.NewTokenManager(&auth.TokenManagerConfig{
		Provider:      auth.NewEnvCredentialProvider(&cfg.Auth),
		TokenEndpoint: cfg.Auth.TokenEndpoint,
		SafetyMargin:  cfg.Auth.SafetyMargin,
	})

	limiter := ratelimit.NewRouteLimiter(map[ratelimit.RouteClass]ratelimit.RouteLimits{
		ratelimit.RouteCreateReport:  {RPS: cfg.RateLimit.CreateRPS, Burst: cfg.RateLimit.CreateBurst},
		ratelimit.RouteReportStatus:  {RPS: cfg.RateLimit.StatusRPS, Burst: cfg.RateLimit.StatusBurst},
		ratelimit.RouteFetchDocument: {RPS: cfg.RateLimit.FetchRPS, Burst: cfg.RateLimit.FetchBurst},
	}, ratelimit.RouteLimits{RPS: 1, Burst: 5})

	engine := &Engine{Registry: registry}

	// The Redis quota tracker is optional; without it each process still
	// paces itself with the local route limiter.
	var quota *ratelimit.QuotaTracker
	if cfg.RateLimit.QuotaBudget > 0 && cfg.Redis.Addr != "" {
		engine.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		quota, err = ratelimit.NewQuotaTracker(&ratelimit.QuotaTrackerConfig{
			Redis:  engine.redisClient,
			Budget: cfg.RateLimit.QuotaBudget,
			Window: cfg.RateLimit.QuotaWindow,
		})
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("failed to create quota tracker: %w", err)
		}
		logger.WithFields(map[string]interface{}{
			"budget": cfg.RateLimit.QuotaBudget,
			"window": cfg.RateLimit.QuotaWindow.String(),
		}).Info("Cross-process request quota enabled")
	}

	retryCfg := retry.DefaultConfig()
	if cfg.RateLimit.MaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.RateLimit.MaxAttempts
	}

	tp := transport.New(&transport.Config{
		Limiter: limiter,
		Quota:   quota,
		Tokens:  tokenManager,
		Retry:   retryCfg,
	})

	client := spapi.NewClient(cfg.API.Endpoint, cfg.API.MarketplaceIDs, tp)
	engine.Acquirer = report.NewAcquirer(client)

	engine.Sink, err = buildSink(cfg)
	if err != nil {
		engine.Close()
		return nil, err
	}

	return engine, nil
}

func buildSink(cfg *config.Config) (sink.Sink, error) {
	switch cfg.Sink.Backend {
	case "s3":
		return sink.NewS3Sink(context.Background(), &cfg.Sink.S3)
	case "fs", "":
		return sink.NewFSSink(cfg.Sink.Directory)
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.Sink.Backend)
	}
}
