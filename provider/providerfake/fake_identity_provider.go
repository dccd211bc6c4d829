package providerfake

import (
	"context"
	"sync"

	"github.com/attendhq/go-session-coordinator/identity"
	"github.com/attendhq/go-session-coordinator/provider"
)

var _ provider.IdentityProvider = (*FakeIdentityProvider)(nil)

// FakeIdentityProvider is a controllable provider.IdentityProvider for tests.
// Tests set the current session directly and emit events by hand.
type FakeIdentityProvider struct {
	lock         sync.RWMutex
	session      *identity.RawSession
	sessionErr   error
	listeners    map[int]provider.SessionListener
	nextListener int
	signOutCalls int
}

func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{
		listeners: make(map[int]provider.SessionListener),
	}
}

// SetSession replaces the provider's current session without emitting an
// event.
func (ip *FakeIdentityProvider) SetSession(session *identity.RawSession) {
	ip.lock.Lock()
	defer ip.lock.Unlock()
	ip.session = session
}

// FailCurrentSession forces CurrentSession to return err.
func (ip *FakeIdentityProvider) FailCurrentSession(err error) {
	ip.lock.Lock()
	defer ip.lock.Unlock()
	ip.sessionErr = err
}

// Emit delivers an event to every registered listener, on the caller's
// goroutine.
func (ip *FakeIdentityProvider) Emit(event provider.EventType, session *identity.RawSession) {
	ip.lock.RLock()
	listeners := make([]provider.SessionListener, 0, len(ip.listeners))
	for _, l := range ip.listeners {
		listeners = append(listeners, l)
	}
	ip.lock.RUnlock()

	for _, l := range listeners {
		l(event, session)
	}
}

// SignOutCalls reports how many times SignOut has been invoked.
func (ip *FakeIdentityProvider) SignOutCalls() int {
	ip.lock.RLock()
	defer ip.lock.RUnlock()
	return ip.signOutCalls
}

func (ip *FakeIdentityProvider) CurrentSession(context.Context) (*identity.RawSession, error) {
	ip.lock.RLock()
	defer ip.lock.RUnlock()

	if ip.sessionErr != nil {
		return nil, ip.sessionErr
	}
	if ip.session == nil {
		return nil, nil
	}
	session := *ip.session
	return &session, nil
}

func (ip *FakeIdentityProvider) OnSessionChange(listener provider.SessionListener) provider.Unsubscribe {
	ip.lock.Lock()
	defer ip.lock.Unlock()

	id := ip.nextListener
	ip.nextListener++
	ip.listeners[id] = listener

	return func() {
		ip.lock.Lock()
		defer ip.lock.Unlock()
		delete(ip.listeners, id)
	}
}

func (ip *FakeIdentityProvider) SignOut(context.Context) error {
	ip.lock.Lock()
	defer ip.lock.Unlock()
	ip.signOutCalls++
	ip.session = nil
	return nil
}
