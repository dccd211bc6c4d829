package config

import "time"

type OIDCConfig interface {
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetScopes() []string
	GetRefreshLeeway() time.Duration
}

type OIDC struct{}

var _ OIDCConfig = OIDC{}

func (OIDC) GetIssuerURL() string {
	return GetEnv("OIDC_ISSUER_URL", "http://localhost:8080")
}

func (OIDC) GetClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "")
}

func (OIDC) GetClientSecret() string {
	return GetEnv("OIDC_CLIENT_SECRET", "")
}

func (OIDC) GetScopes() []string {
	return []string{"openid", "profile", "email"}
}

// GetRefreshLeeway is how long before access-token expiry the provider
// refreshes credentials and re-emits the session.
func (OIDC) GetRefreshLeeway() time.Duration {
	return 1 * time.Minute
}
