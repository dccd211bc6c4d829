// Package loadguard provides the cancellation-token mechanism that ensures
// only the most recent identity-resolution attempt ever commits its result.
//
// Every call to Begin invalidates the previously issued token, so for any
// sequence of Begin calls only the last token can observe Cancelled() ==
// false. Callers re-check their token after every asynchronous step and
// discard the result entirely if it has been cancelled.
package loadguard

import "sync"

// Guard issues load tokens with monotonically increasing epochs. At most one
// token is uncancelled at any instant. The zero value is ready to use.
type Guard struct {
	mu     sync.Mutex
	epoch  uint64
	latest *Token
}

// Token identifies a single resolution attempt.
type Token struct {
	guard     *Guard
	epoch     uint64
	mu        sync.Mutex
	cancelled bool
}

// Begin cancels any previously issued token and returns a fresh one with the
// next epoch.
func (g *Guard) Begin() *Token {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.latest != nil {
		g.latest.cancel()
	}
	g.epoch++
	g.latest = &Token{guard: g, epoch: g.epoch}
	return g.latest
}

// Epoch returns the token's epoch number.
func (t *Token) Epoch() uint64 {
	return t.epoch
}

// Cancelled reports whether a newer token has been issued since this one.
// A resolution holding a cancelled token must not apply any side effect.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Current reports whether this token's epoch is still the guard's
// latest-issued epoch. Defends against a reentrant completion racing with a
// newer Begin on another goroutine.
func (t *Token) Current() bool {
	t.guard.mu.Lock()
	defer t.guard.mu.Unlock()
	return t.guard.epoch == t.epoch
}

func (t *Token) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}
