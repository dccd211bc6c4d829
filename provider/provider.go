// Package provider defines the narrow interface the coordinator consumes the
// external identity provider through.
package provider

import (
	"context"

	"github.com/attendhq/go-session-coordinator/identity"
)

// EventType classifies session-change events emitted by the identity
// provider.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// SessionListener receives session-change events. Session is nil when the
// provider has no active session (sign-out, refresh failure).
type SessionListener func(event EventType, session *identity.RawSession)

// Unsubscribe detaches a previously registered listener. Safe to call more
// than once.
type Unsubscribe func()

// IdentityProvider is the external source of truth for "who is signed in".
type IdentityProvider interface {
	// CurrentSession returns the active raw session, or nil if there is none.
	CurrentSession(ctx context.Context) (*identity.RawSession, error)

	// OnSessionChange registers a listener for session-change events and
	// returns a function that detaches it.
	OnSessionChange(listener SessionListener) Unsubscribe

	// SignOut terminates the provider-side session. Idempotent.
	SignOut(ctx context.Context) error
}
