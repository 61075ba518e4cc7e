// Package transport implements the rate-limited, retrying HTTP executor used
// for every Reports API call. It owns the retry/backoff discipline (429/5xx
// with Retry-After), the single 401 refresh-and-retry, and bearer token
// injection, so no endpoint ever carries its own backoff logic.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/report-harvester/internal/auth"
	apperrors "github.com/report-harvester/internal/errors"
	"github.com/report-harvester/internal/logging"
	"github.com/report-harvester/internal/ratelimit"
	"github.com/report-harvester/internal/retry"
)

// TokenSource supplies bearer tokens and supports invalidation after a 401.
type TokenSource interface {
	Token(ctx context.Context) (auth.AccessToken, error)
	Invalidate()
}

// Request describes one logical API call. The body is held as bytes so the
// call can be replayed across retry attempts.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
	Route  ratelimit.RouteClass
	// SkipAuth disables bearer injection. Used for pre-signed download URLs,
	// which reject extra Authorization headers.
	SkipAuth bool
}

// Response is the fully-read result of a successful call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport executes requests against a quota-constrained remote API.
type Transport struct {
	client   *http.Client
	limiter  *ratelimit.RouteLimiter
	quota    *ratelimit.QuotaTracker
	tokens   TokenSource
	retryCfg *retry.Config

	// sleep is overridable in tests to observe backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds configuration for the transport.
type Config struct {
	// HTTPClient defaults to a client with a 60s timeout when nil.
	HTTPClient *http.Client

	// Limiter paces requests per route class. Required.
	Limiter *ratelimit.RouteLimiter

	// Quota is the optional cross-process request quota tracker.
	Quota *ratelimit.QuotaTracker

	// Tokens supplies bearer tokens. Required unless every request sets
	// SkipAuth.
	Tokens TokenSource

	// Retry defaults to retry.DefaultConfig when nil.
	Retry *retry.Config
}

// New creates a transport.
func New(cfg *Config) *Transport {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &Transport{
		client:   client,
		limiter:  cfg.Limiter,
		quota:    cfg.Quota,
		tokens:   cfg.Tokens,
		retryCfg: retryCfg,
		sleep:    retry.Sleep,
	}
}

// Execute performs the request, suspending on rate-limiter budget and
// retrying 429/5xx responses with exponential backoff. A 401 triggers exactly
// one token refresh and one resend; a second 401 fails with an auth error.
func (t *Transport) Execute(ctx context.Context, req *Request) (*Response, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"route":  string(req.Route),
		"method": req.Method,
	})

	var (
		lastKind  string
		lastErr   error
		refreshed bool
	)

	for attempt := 1; attempt <= t.retryCfg.MaxAttempts; attempt++ {
		if err := t.waitForBudget(ctx, req.Route); err != nil {
			return nil, err
		}

		resp, err := t.send(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Network-level failures are retried like server errors.
			lastKind = apperrors.KindServerError
			lastErr = err
			if retryErr := t.backoff(ctx, logger, attempt, 0, err); retryErr != nil {
				return nil, retryErr
			}
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil

		case resp.StatusCode == http.StatusUnauthorized:
			if refreshed {
				return nil, apperrors.NewAuthError("request unauthorized after token refresh", nil)
			}
			refreshed = true
			t.tokens.Invalidate()
			logger.Warn("Received 401, refreshing access token and retrying once")
			// The refresh retry is immediate and does not consume a
			// backoff attempt.
			attempt--

		case resp.StatusCode == http.StatusTooManyRequests:
			lastKind = apperrors.KindRateLimited
			lastErr = apperrors.NewClientError(resp.StatusCode, "")
			if retryErr := t.backoff(ctx, logger, attempt, retryAfter(resp.Header), lastErr); retryErr != nil {
				return nil, retryErr
			}

		case resp.StatusCode >= 500:
			lastKind = apperrors.KindServerError
			lastErr = apperrors.NewClientError(resp.StatusCode, "")
			if retryErr := t.backoff(ctx, logger, attempt, retryAfter(resp.Header), lastErr); retryErr != nil {
				return nil, retryErr
			}

		default:
			// Non-retryable 4xx
			return nil, apperrors.NewClientError(resp.StatusCode, string(resp.Body))
		}

		if attempt >= t.retryCfg.MaxAttempts {
			break
		}
	}

	if lastKind == apperrors.KindRateLimited {
		return nil, apperrors.NewRateLimitedError(t.retryCfg.MaxAttempts, lastErr)
	}
	return nil, apperrors.NewServerError(t.retryCfg.MaxAttempts, lastErr)
}

// waitForBudget suspends on the local route bucket and, when configured, the
// shared cross-process quota.
func (t *Transport) waitForBudget(ctx context.Context, route ratelimit.RouteClass) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx, route); err != nil {
			return err
		}
	}
	if t.quota != nil {
		if err := t.quota.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) send(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	if !req.SkipAuth {
		token, err := t.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("x-amz-access-token", token.Value)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}, nil
}

// backoff waits before the next attempt, honoring Retry-After when it exceeds
// the computed exponential delay. It fails only on context cancellation.
func (t *Transport) backoff(ctx context.Context, logger *logging.Logger, attempt int, minDelay time.Duration, cause error) error {
	if attempt >= t.retryCfg.MaxAttempts {
		return nil
	}

	delay := t.retryCfg.Delay(attempt)
	if minDelay > delay {
		delay = minDelay
	}

	logger.WithFields(map[string]interface{}{
		"attempt":     attempt,
		"maxAttempts": t.retryCfg.MaxAttempts,
		"delay":       delay.String(),
		"cause":       cause.Error(),
	}).Warn("Request failed, retrying with backoff")

	return t.sleep(ctx, delay)
}

// retryAfter parses a Retry-After header, returning 0 when absent or
// unparseable. Both delta-seconds and HTTP-date forms are accepted.
func retryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
