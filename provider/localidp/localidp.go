// Package localidp is an in-process identity provider for development and
// integration tests. It keeps bcrypt-hashed credentials in memory and emits
// the same session-change events a hosted provider would.
package localidp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/attendhq/go-session-coordinator/identity"
	interrors "github.com/attendhq/go-session-coordinator/internal/errors"
	"github.com/attendhq/go-session-coordinator/internal/utils"
	"github.com/attendhq/go-session-coordinator/provider"
)

const defaultSessionTTL = 1 * time.Hour

// Account is a registered local user.
type Account struct {
	Subject      string
	Email        string
	PasswordHash string
}

// Provider is an in-memory provider.IdentityProvider with password sign-in.
type Provider struct {
	logger     zerolog.Logger
	sessionTTL time.Duration
	nowTime    func() time.Time

	lock         sync.RWMutex
	accounts     map[string]*Account // keyed by email
	session      *identity.RawSession
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

// WithSessionTTL overrides the default session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.sessionTTL = ttl
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

func New(options ...Option) *Provider {
	p := &Provider{
		logger:     zerolog.Nop(),
		sessionTTL: defaultSessionTTL,
		nowTime:    time.Now,
		accounts:   make(map[string]*Account),
		listeners:  make(map[int]provider.SessionListener),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Register adds an account with the given password. The subject id is
// generated when absent.
func (p *Provider) Register(subject, email, password string) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "[localidp.Register] hashing password")
	}
	if subject == "" {
		subject = uuid.New().String()
	}

	account := &Account{Subject: subject, Email: email, PasswordHash: string(hash)}

	p.lock.Lock()
	defer p.lock.Unlock()
	p.accounts[email] = account
	return account, nil
}

// SignIn validates credentials, establishes a session, and emits SIGNED_IN.
func (p *Provider) SignIn(_ context.Context, email, password string) error {
	p.lock.Lock()
	account, ok := p.accounts[email]
	if !ok {
		p.lock.Unlock()
		return errors.New("[localidp.SignIn] unknown account")
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		p.lock.Unlock()
		return errors.New("[localidp.SignIn] password mismatch")
	}

	session := &identity.RawSession{
		Subject:   account.Subject,
		Email:     account.Email,
		ExpiresAt: p.nowTime().Add(p.sessionTTL),
	}
	p.session = session
	listeners := p.listenerSnapshot()
	p.lock.Unlock()

	p.logger.Info().Str("subject", account.Subject).Msg("local sign-in")
	p.emit(listeners, provider.EventSignedIn, session)
	return nil
}

// Refresh extends the current session and emits TOKEN_REFRESHED. Fails with
// interrors.ErrRefreshToken when no session is active, mirroring a hosted
// provider rejecting a stale refresh token.
func (p *Provider) Refresh(context.Context) error {
	p.lock.Lock()
	if p.session == nil {
		p.lock.Unlock()
		return interrors.ErrRefreshToken
	}
	session := *p.session
	session.ExpiresAt = p.nowTime().Add(p.sessionTTL)
	p.session = &session
	listeners := p.listenerSnapshot()
	p.lock.Unlock()

	p.emit(listeners, provider.EventTokenRefreshed, &session)
	return nil
}

func (p *Provider) CurrentSession(context.Context) (*identity.RawSession, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if p.session == nil {
		return nil, nil
	}
	if !p.session.ExpiresAt.IsZero() && p.nowTime().After(p.session.ExpiresAt) {
		return nil, interrors.ErrRefreshToken
	}
	return utils.Ptr(utils.Value(p.session)), nil
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
	hadSession := p.session != nil
	p.session = nil
	listeners := p.listenerSnapshot()
	p.lock.Unlock()

	if hadSession {
		p.emit(listeners, provider.EventSignedOut, nil)
	}
	return nil
}

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
