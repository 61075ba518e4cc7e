// Package auth implements the LWA refresh-token exchange and a cached,
// single-flight token manager shared by all outbound API calls.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/report-harvester/internal/errors"
	"github.com/report-harvester/internal/logging"
)

// DefaultSafetyMargin is how long before expiry a cached token is considered
// stale. It must cover at least one network round trip.
const DefaultSafetyMargin = 60 * time.Second

// AccessToken is a short-lived bearer credential for API calls.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token is still usable at the given instant with
// the given safety margin.
func (t AccessToken) Valid(now time.Time, margin time.Duration) bool {
	return t.Value != "" && now.Before(t.ExpiresAt.Add(-margin))
}

// TokenManager exchanges a refresh token for short-lived access tokens and
// caches the result until near-expiry. Concurrent callers during a refresh
// share a single in-flight exchange.
type TokenManager struct {
	provider      CredentialProvider
	tokenEndpoint string
	safetyMargin  time.Duration
	client        *http.Client
	now           func() time.Time

	mu     sync.Mutex
	cached AccessToken

	group singleflight.Group
}

// TokenManagerConfig holds configuration for the token manager.
type TokenManagerConfig struct {
	Provider      CredentialProvider
	TokenEndpoint string
	// SafetyMargin defaults to DefaultSafetyMargin when zero.
	SafetyMargin time.Duration
	// HTTPClient defaults to a client with a 30s timeout when nil.
	HTTPClient *http.Client
}

// NewTokenManager creates a token manager.
func NewTokenManager(cfg *TokenManagerConfig) *TokenManager {
	margin := cfg.SafetyMargin
	if margin == 0 {
		margin = DefaultSafetyMargin
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenManager{
		provider:      cfg.Provider,
		tokenEndpoint: cfg.TokenEndpoint,
		safetyMargin:  margin,
		client:        client,
		now:           time.Now,
	}
}

// Token returns a cached access token, refreshing it when it is within the
// safety margin of expiry. The returned token is always valid for at least
// one network round trip.
func (m *TokenManager) Token(ctx context.Context) (AccessToken, error) {
	m.mu.Lock()
	cached := m.cached
	m.mu.Unlock()

	if cached.Valid(m.now(), m.safetyMargin) {
		return cached, nil
	}

	// Coalesce concurrent refreshes into one exchange.
	result, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		// Another caller may have refreshed between the staleness check
		// and entering the group.
		m.mu.Lock()
		current := m.cached
		m.mu.Unlock()
		if current.Valid(m.now(), m.safetyMargin) {
			return current, nil
		}

		token, err := m.exchange(ctx)
		if err != nil {
			return AccessToken{}, err
		}

		m.mu.Lock()
		m.cached = token
		m.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return AccessToken{}, err
	}
	return result.(AccessToken), nil
}

// Invalidate drops the cached token. The transport calls this after a 401 so
// the next Token call performs a fresh exchange.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.cached = AccessToken{}
	m.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// exchange performs the refresh-token grant against the auth endpoint.
// Failures are not retried here; callers decide whether to retry the whole
// operation.
func (m *TokenManager) exchange(ctx context.Context) (AccessToken, error) {
	logger := logging.FromContext(ctx)

	creds, err := m.provider.Credentials(ctx)
	if err != nil {
		return AccessToken{}, err
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", creds.RefreshToken)
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, apperrors.NewAuthError("failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return AccessToken{}, apperrors.NewAuthError("token exchange request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return AccessToken{}, apperrors.NewAuthError(
			fmt.Sprintf("token exchange returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return AccessToken{}, apperrors.NewAuthError("failed to decode token response", err)
	}
	if parsed.AccessToken == "" {
		return AccessToken{}, apperrors.NewAuthError("token response contained no access_token", nil)
	}

	expiresIn := parsed.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	token := AccessToken{
		Value:     parsed.AccessToken,
		ExpiresAt: m.now().Add(time.Duration(expiresIn) * time.Second),
	}

	logger.WithFields(map[string]interface{}{
		"expiresIn": expiresIn,
	}).Debug("Access token refreshed")

	return token, nil
}
