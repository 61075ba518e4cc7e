package auth

import (
	"context"

	"github.com/report-harvester/internal/config"
	apperrors "github.com/report-harvester/internal/errors"
)

// Credentials holds the LWA client credentials used for the refresh-token
// exchange.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// CredentialProvider supplies the credentials for token exchange. The
// harvester only reads credentials through this interface so secret storage
// stays pluggable.
type CredentialProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// EnvCredentialProvider reads credentials from the loaded configuration,
// which in turn sources them from environment variables.
type EnvCredentialProvider struct {
	cfg *config.AuthConfig
}

// NewEnvCredentialProvider creates a provider backed by the auth configuration.
func NewEnvCredentialProvider(cfg *config.AuthConfig) *EnvCredentialProvider {
	return &EnvCredentialProvider{cfg: cfg}
}

// Credentials returns the configured credentials, failing when any of the
// three values is missing.
func (p *EnvCredentialProvider) Credentials(_ context.Context) (Credentials, error) {
	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" || p.cfg.RefreshToken == "" {
		return Credentials{}, apperrors.NewCredentialError(
			"SP_API_CLIENT_ID, SP_API_CLIENT_SECRET and SP_API_REFRESH_TOKEN must be set", nil)
	}
	return Credentials{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RefreshToken: p.cfg.RefreshToken,
	}, nil
}
