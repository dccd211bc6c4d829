package coordinator

import (
	"fmt"

	"github.com/attendhq/go-session-coordinator/identity"
)

// SessionState enumerates the states of the session state machine.
// Unauthenticated and Authenticated are the steady states; Resolving is
// always transient.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateResolving       SessionState = "resolving"
	StateAuthenticated   SessionState = "authenticated"
	StateFailed          SessionState = "failed"
)

// Session is the coordinator's tagged-union state. Exactly one Session value
// is live at a time, owned exclusively by the Coordinator and replaced
// wholesale on every transition.
type Session struct {
	state    SessionState
	epoch    uint64
	identity identity.Identity
	err      error
}

// Unauthenticated is the state with no active user.
func Unauthenticated() Session {
	return Session{state: StateUnauthenticated}
}

// Resolving is the transient state while a resolution with the given epoch
// is in flight.
func Resolving(epoch uint64) Session {
	return Session{state: StateResolving, epoch: epoch}
}

// Authenticated is the steady state bound to a resolved identity.
func Authenticated(id identity.Identity) Session {
	return Session{state: StateAuthenticated, identity: id}
}

// Failed is the state after a terminal resolution failure.
func Failed(err error) Session {
	return Session{state: StateFailed, err: err}
}

// State returns the session's state tag.
func (s Session) State() SessionState { return s.state }

// Epoch returns the in-flight resolution epoch; zero unless Resolving.
func (s Session) Epoch() uint64 { return s.epoch }

// Identity returns the bound identity and whether the session is
// Authenticated.
func (s Session) Identity() (identity.Identity, bool) {
	return s.identity, s.state == StateAuthenticated
}

// Err returns the terminal failure; nil unless Failed.
func (s Session) Err() error { return s.err }

// Authenticated reports whether the session is in the Authenticated state.
func (s Session) Authenticated() bool { return s.state == StateAuthenticated }

func (s Session) String() string {
	switch s.state {
	case StateResolving:
		return fmt.Sprintf("resolving(epoch=%d)", s.epoch)
	case StateAuthenticated:
		return fmt.Sprintf("authenticated(%s)", s.identity.ID)
	case StateFailed:
		return fmt.Sprintf("failed(%v)", s.err)
	default:
		return string(StateUnauthenticated)
	}
}
