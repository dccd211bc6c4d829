// Package coordinator owns the session state machine for the attendance
// app: it resolves "who is the current user" from the identity provider,
// tolerates overlapping in-flight resolution attempts without ever applying
// a stale result, and keeps the live-update subscription set consistent with
// the current identity.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/attendhq/go-session-coordinator/identity"
	"github.com/attendhq/go-session-coordinator/identity/loadguard"
	interrors "github.com/attendhq/go-session-coordinator/internal/errors"
	"github.com/attendhq/go-session-coordinator/internal/utils"
	"github.com/attendhq/go-session-coordinator/provider"
)

// IdentityResolver enriches a raw session into an Identity. Implemented by
// resolver.Resolver; narrowed here so tests can substitute slow or failing
// resolutions.
type IdentityResolver interface {
	Resolve(ctx context.Context, raw identity.RawSession) (identity.Identity, error)
}

// Reconciler keeps dependent resources consistent with the current identity.
// Implemented by subscriptions.Supervisor.
type Reconciler interface {
	Reconcile(ctx context.Context, current *identity.Identity)
	Close()
}

// Listener observes committed session transitions. Listeners run on the
// coordinator's event-loop goroutine and must not block.
type Listener func(Session)

// Unsubscribe detaches a previously registered listener.
type Unsubscribe func()

type eventKind int

const (
	evtSession  eventKind = iota // provider session-change or equivalent command
	evtResolved                  // a resolution attempt completed
	evtSignIn                    // command carrying an already-resolved identity
)

type event struct {
	kind       eventKind
	provider   provider.EventType
	raw        *identity.RawSession
	token      *loadguard.Token
	resolved   identity.Identity
	resolveErr error
}

// Coordinator is the session state machine. All state mutation happens on a
// single event-loop goroutine; external events, commands, and resolution
// completions are funnelled through one channel, which is the Go rendition
// of the single cooperative thread this design assumes.
type Coordinator struct {
	idp        provider.IdentityProvider
	resolver   IdentityResolver
	supervisor Reconciler
	guard      loadguard.Guard
	logger     zerolog.Logger

	events chan event
	quit   chan struct{}
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	unsub     provider.Unsubscribe

	lock        sync.RWMutex
	session     Session
	listeners   map[int]Listener
	listenerSeq int
}

// Option modifies the Coordinator instance.
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New initializes a Coordinator with required dependencies. The session
// starts Unauthenticated; call Start to attach to the provider.
func New(idp provider.IdentityProvider, res IdentityResolver, supervisor Reconciler, options ...Option) (*Coordinator, error) {
	if idp == nil {
		return nil, errors.New("[coordinator.New] identity provider is required")
	}
	if res == nil {
		return nil, errors.New("[coordinator.New] resolver is required")
	}
	if supervisor == nil {
		return nil, errors.New("[coordinator.New] supervisor is required")
	}

	c := &Coordinator{
		idp:        idp,
		resolver:   res,
		supervisor: supervisor,
		logger:     zerolog.Nop(),
		events:     make(chan event, 16),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		session:    Unauthenticated(),
		listeners:  make(map[int]Listener),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Start attaches to the identity provider, begins the event loop, and kicks
// off an initial resolution if a session already exists. Safe to call more
// than once; only the first call has any effect.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.unsub = c.idp.OnSessionChange(func(evt provider.EventType, session *identity.RawSession) {
			c.enqueue(event{kind: evtSession, provider: evt, raw: session})
		})

		go c.run(ctx)
		c.started.Store(true)

		raw, err := c.idp.CurrentSession(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("initial session lookup failed")
		}
		if raw != nil {
			c.enqueue(event{kind: evtSession, provider: provider.EventSignedIn, raw: raw})
		}
	})
}

// Stop detaches from the provider, stops the event loop, and closes every
// open subscription. Idempotent.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		if c.unsub != nil {
			c.unsub()
		}
		close(c.quit)
		if c.started.Load() {
			<-c.done
		}
		c.supervisor.Close()
	})
}

// Current returns a snapshot of the session state.
func (c *Coordinator) Current() Session {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.session
}

// OnChange registers a listener for session transitions and returns a
// function that detaches it.
func (c *Coordinator) OnChange(listener Listener) Unsubscribe {
	c.lock.Lock()
	defer c.lock.Unlock()

	id := c.listenerSeq
	c.listenerSeq++
	c.listeners[id] = listener

	return func() {
		c.lock.Lock()
		defer c.lock.Unlock()
		delete(c.listeners, id)
	}
}

// SignIn feeds the coordinator an identity that has already been resolved
// elsewhere, such as a post-registration flow. Any in-flight resolution is
// cancelled in favour of the supplied identity.
func (c *Coordinator) SignIn(id identity.Identity) {
	c.enqueue(event{kind: evtSignIn, resolved: id})
}

// SignOut terminates the provider-side session and transitions to
// Unauthenticated.
func (c *Coordinator) SignOut(ctx context.Context) error {
	err := c.idp.SignOut(ctx)
	// The provider usually emits SIGNED_OUT itself; enqueueing the absent
	// session as well is harmless because the transition is idempotent.
	c.enqueue(event{kind: evtSession, provider: provider.EventSignedOut, raw: nil})
	if err != nil {
		return errors.Wrap(err, "[Coordinator.SignOut] provider sign-out")
	}
	return nil
}

func (c *Coordinator) enqueue(e event) {
	select {
	case c.events <- e:
	case <-c.quit:
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.quit:
			return
		case e := <-c.events:
			c.handle(ctx, e)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, e event) {
	switch e.kind {
	case evtSession:
		c.logger.Debug().Str("event", string(e.provider)).Bool("session", e.raw != nil).Msg("provider session change")
		if e.raw == nil {
			// SIGNED_OUT, or USER_UPDATED with no session. Both mean "no
			// active user" and are treated identically.
			c.handleSessionAbsent(ctx)
			return
		}
		c.beginResolution(ctx, *e.raw)
	case evtResolved:
		c.handleResolved(ctx, e)
	case evtSignIn:
		// Cancel any in-flight resolution; the supplied identity wins.
		c.guard.Begin()
		c.commit(ctx, Authenticated(e.resolved))
	}
}

// handleSessionAbsent transitions to Unauthenticated. With no prior session
// there is nothing to do and the load guard is not touched; otherwise any
// in-flight resolution is invalidated first so it can never resurrect the
// old identity.
func (c *Coordinator) handleSessionAbsent(ctx context.Context) {
	if c.Current().State() == StateUnauthenticated {
		return
	}
	c.guard.Begin()
	c.commit(ctx, Unauthenticated())
}

// beginResolution starts a resolution attempt for raw under a fresh load
// token. The resolver runs on its own goroutine; its completion is posted
// back to the event loop where the token is re-checked before any state is
// touched.
func (c *Coordinator) beginResolution(ctx context.Context, raw identity.RawSession) {
	token := c.guard.Begin()
	c.setSession(Resolving(token.Epoch()))

	go func() {
		resolved, err := c.resolver.Resolve(ctx, raw)
		c.enqueue(event{kind: evtResolved, token: token, raw: &raw, resolved: resolved, resolveErr: err})
	}()
}

func (c *Coordinator) handleResolved(ctx context.Context, e event) {
	if e.token.Cancelled() || !e.token.Current() {
		c.logger.Debug().
			Uint64("epoch", e.token.Epoch()).
			Str("subject", e.raw.Subject).
			Msg("discarding stale resolution result")
		return
	}

	switch {
	case e.resolveErr == nil:
		c.commit(ctx, Authenticated(e.resolved))

	case interrors.Is(e.resolveErr, interrors.ErrIdentityMismatch):
		// An interleaved user switch. Expected race; abandon without
		// touching state. The event for the new user settles the session.
		c.logger.Debug().
			Str("subject", e.raw.Subject).
			Msg("abandoning resolution for superseded subject")

	case interrors.Is(e.resolveErr, interrors.ErrRefreshToken):
		// Credentials are gone; the session cannot be kept. Force a
		// provider sign-out and surface the failure so the UI can redirect
		// to re-authentication.
		c.logger.Warn().
			Str("subject", e.raw.Subject).
			Msg("refresh token invalid, signing out")
		if err := c.idp.SignOut(ctx); err != nil {
			c.logger.Error().Err(err).Msg("provider sign-out failed")
		}
		c.commit(ctx, Failed(e.resolveErr))

	default:
		c.commit(ctx, Failed(e.resolveErr))
	}
}

// setSession replaces the session and notifies listeners, without involving
// the supervisor. Used for the transient Resolving state.
func (c *Coordinator) setSession(session Session) {
	c.lock.Lock()
	c.session = session
	listeners := c.listenerSnapshot()
	c.lock.Unlock()

	for _, l := range listeners {
		l(session)
	}
}

// commit applies a settled session state and reconciles the subscription set
// against it. Only ever called from the event-loop goroutine, so reconciles
// are serial and teardown/open ordering is preserved.
func (c *Coordinator) commit(ctx context.Context, session Session) {
	c.lock.Lock()
	c.session = session
	listeners := c.listenerSnapshot()
	c.lock.Unlock()

	var current *identity.Identity
	if id, ok := session.Identity(); ok {
		current = utils.Ptr(id)
	}
	c.supervisor.Reconcile(ctx, current)

	c.logger.Info().Stringer("session", session).Msg("session transition committed")
	for _, l := range listeners {
		l(session)
	}
}

func (c *Coordinator) listenerSnapshot() []Listener {
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	return listeners
}
