// Package oidcprovider implements provider.IdentityProvider against a
// hosted OIDC issuer. Tokens obtained by the app's auth-code flow are handed
// in via SignInWithToken; the provider verifies the ID token, keeps
// credentials fresh in the background, and emits session-change events as
// they happen.
package oidcprovider

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/attendhq/go-session-coordinator/identity"
	interrors "github.com/attendhq/go-session-coordinator/internal/errors"
	"github.com/attendhq/go-session-coordinator/provider"
)

const defaultRefreshLeeway = 1 * time.Minute

// Config carries the issuer connection settings.
type Config struct {
	IssuerURL     string
	ClientID      string
	ClientSecret  string
	Scopes        []string
	RefreshLeeway time.Duration // How long before expiry tokens are refreshed
}

type session struct {
	raw    identity.RawSession
	token  *oauth2.Token
	cancel context.CancelFunc // Stops the refresh loop for this session
}

// Provider is an OIDC-backed provider.IdentityProvider.
type Provider struct {
	config       Config
	oidcProvider *oidc.Provider
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	logger       zerolog.Logger

	lock         sync.RWMutex
	current      *session
	listeners    map[int]provider.SessionListener
	nextListener int
}

// Option modifies the Provider instance.
type Option func(*Provider)

// WithLogger sets the provider's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// New discovers the issuer and initializes the provider.
func New(ctx context.Context, config Config, options ...Option) (*Provider, error) {
	if config.IssuerURL == "" {
		return nil, errors.New("[oidcprovider.New] issuer URL is required")
	}
	if config.ClientID == "" {
		return nil, errors.New("[oidcprovider.New] client ID is required")
	}
	if config.RefreshLeeway <= 0 {
		config.RefreshLeeway = defaultRefreshLeeway
	}
	if len(config.Scopes) == 0 {
		config.Scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}

	oidcProvider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.New] failed to create OIDC provider")
	}

	p := &Provider{
		config:       config,
		oidcProvider: oidcProvider,
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes:       config.Scopes,
		},
		verifier:  oidcProvider.Verifier(&oidc.Config{ClientID: config.ClientID}),
		logger:    zerolog.Nop(),
		listeners: make(map[int]provider.SessionListener),
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// SignInWithToken installs tokens obtained from the issuer (auth-code
// exchange, device flow). The ID token is verified, a refresh loop is
// started, and SIGNED_IN is emitted.
func (p *Provider) SignInWithToken(ctx context.Context, token *oauth2.Token) error {
	raw, err := p.sessionFromToken(ctx, token)
	if err != nil {
		return errors.Wrap(err, "[Provider.SignInWithToken] token verification")
	}

	refreshCtx, cancel := context.WithCancel(context.Background())

	p.lock.Lock()
	if p.current != nil {
		p.current.cancel()
	}
	p.current = &session{raw: raw, token: token, cancel: cancel}
	listeners := p.listenerSnapshot()
	p.lock.Unlock()

	go p.refreshLoop(refreshCtx, token)

	p.emit(listeners, provider.EventSignedIn, &raw)
	return nil
}

func (p *Provider) CurrentSession(context.Context) (*identity.RawSession, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if p.current == nil {
		return nil, nil
	}
	raw := p.current.raw
	return &raw, nil
}

func (p *Provider) OnSessionChange(listener provider.SessionListener) provider.Unsubscribe {
	p.lock.Lock()
	defer p.lock.Unlock()

	id := p.nextListener
	p.nextListener++
	p.listeners[id] = listener

	return func() {
		p.lock.Lock()
		defer p.lock.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Provider) SignOut(context.Context) error {
	p.lock.Lock()
	hadSession := p.current != nil
	if hadSession {
		p.current.cancel()
		p.current = nil
	}
	listeners := p.listenerSnapshot()
	p.lock.Unlock()

	if hadSession {
		p.emit(listeners, provider.EventSignedOut, nil)
	}
	return nil
}

// refreshLoop keeps the session's credentials fresh, emitting
// TOKEN_REFRESHED on every renewal. A refresh failure means the refresh
// token itself is gone, which terminates the session.
func (p *Provider) refreshLoop(ctx context.Context, token *oauth2.Token) {
	source := p.oauth2Config.TokenSource(ctx, token)
	current := token

	for {
		wait := time.Until(current.Expiry.Add(-p.config.RefreshLeeway))
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		refreshed, err := source.Token()
		if err != nil {
			p.logger.Warn().Err(err).Msg("token refresh failed, terminating session")
			p.expireSession(ctx)
			return
		}

		raw, err := p.sessionFromToken(ctx, refreshed)
		if err != nil {
			p.logger.Warn().Err(err).Msg("refreshed token failed verification, terminating session")
			p.expireSession(ctx)
			return
		}

		p.lock.Lock()
		if p.current == nil || ctx.Err() != nil {
			p.lock.Unlock()
			return
		}
		p.current.raw = raw
		p.current.token = refreshed
		listeners := p.listenerSnapshot()
		p.lock.Unlock()

		current = refreshed
		p.emit(listeners, provider.EventTokenRefreshed, &raw)
	}
}

// expireSession drops the session after an unrecoverable refresh failure
// and emits SIGNED_OUT so the coordinator returns the user to an
// unauthenticated view.
func (p *Provider) expireSession(ctx context.Context) {
	p.lock.Lock()
	if p.current == nil || ctx.Err() != nil {
		p.lock.Unlock()
		return
	}
	p.current.cancel()
	p.current = nil
	listeners := p.listenerSnapshot()
	p.lock.Unlock()

	p.emit(listeners, provider.EventSignedOut, nil)
}

// accessClaims are the custom claims the attendance backend stamps on
// access tokens. The role and department never appear in the ID token.
type accessClaims struct {
	Role       string `json:"role"`
	Department string `json:"department"`
	jwt.RegisteredClaims
}

// sessionFromToken verifies the ID token and assembles a RawSession from
// its standard claims plus whatever custom claims the access token carries.
func (p *Provider) sessionFromToken(ctx context.Context, token *oauth2.Token) (identity.RawSession, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return identity.RawSession{}, interrors.ErrRefreshToken
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return identity.RawSession{}, interrors.Wrapf(interrors.ErrRefreshToken, "ID token rejected: %v", err)
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return identity.RawSession{}, errors.Wrap(err, "parsing ID token claims")
	}

	raw := identity.RawSession{
		Subject:   idToken.Subject,
		Email:     claims.Email,
		ExpiresAt: token.Expiry,
	}

	// Best effort: access tokens may be opaque, in which case the session
	// simply carries no role or department and resolution falls back to
	// its defaults.
	role, department, err := ParseAccessClaims(token.AccessToken)
	if err != nil {
		p.logger.Debug().Err(err).Msg("access token carries no parseable claims")
	} else {
		raw.Role = role
		raw.Department = department
	}

	return raw, nil
}

// ParseAccessClaims extracts the custom role and department claims from an
// access token without re-verifying its signature; the token came from the
// issuer over TLS and the ID token is verified separately.
func ParseAccessClaims(accessToken string) (role, department string, err error) {
	var claims accessClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, &claims); err != nil {
		return "", "", errors.Wrap(err, "[ParseAccessClaims] parsing access token")
	}
	return claims.Role, claims.Department, nil
}

// AccessClaims returns the custom claims on the current session's access
// token.
func (p *Provider) AccessClaims() (role, department string, err error) {
	p.lock.RLock()
	current := p.current
	p.lock.RUnlock()

	if current == nil {
		return "", "", interrors.ErrNoSession
	}
	return ParseAccessClaims(current.token.AccessToken)
}

// listenerSnapshot copies the listener set; callers must hold p.lock.
func (p *Provider) listenerSnapshot() []provider.SessionListener {
	listeners := make([]provider.SessionListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	return listeners
}

func (p *Provider) emit(listeners []provider.SessionListener, event provider.EventType, session *identity.RawSession) {
	for _, l := range listeners {
		l(event, session)
	}
}

var _ provider.IdentityProvider = (*Provider)(nil)
