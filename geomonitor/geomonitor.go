// Package geomonitor defines the geofencing monitor interface. The monitor
// runs while an identity is bound and stops when it goes away; the distance
// and geometry math live behind the interface.
package geomonitor

import (
	"context"
	"sync"

	"github.com/attendhq/go-session-coordinator/identity"
)

// Monitor is a background location watcher bound to at most one identity.
// Start and Stop are idempotent in both directions: starting a running
// monitor and stopping a stopped one are no-ops.
type Monitor interface {
	Start(ctx context.Context, id identity.Identity) error
	Stop()
}

// Noop is a Monitor that does nothing. Used when the deployment has no
// geofencing configured.
type Noop struct{}

func (Noop) Start(context.Context, identity.Identity) error { return nil }
func (Noop) Stop()                                          {}

var _ Monitor = Noop{}

// Fake is a recording Monitor for tests.
type Fake struct {
	lock       sync.Mutex
	running    bool
	startCalls int
	stopCalls  int
	lastID     identity.Identity
	startErr   error
}

var _ Monitor = (*Fake)(nil)

func NewFake() *Fake { return &Fake{} }

// FailStart forces Start to return err.
func (f *Fake) FailStart(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.startErr = err
}

func (f *Fake) Start(_ context.Context, id identity.Identity) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.startErr != nil {
		return f.startErr
	}
	if f.running {
		return nil
	}
	f.running = true
	f.startCalls++
	f.lastID = id
	return nil
}

func (f *Fake) Stop() {
	f.lock.Lock()
	defer f.lock.Unlock()

	if !f.running {
		return
	}
	f.running = false
	f.stopCalls++
}

// Running reports whether the monitor is currently started.
func (f *Fake) Running() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.running
}

// StartCalls reports how many effective starts occurred.
func (f *Fake) StartCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.startCalls
}

// StopCalls reports how many effective stops occurred.
func (f *Fake) StopCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.stopCalls
}

// LastIdentity returns the identity passed to the most recent Start.
func (f *Fake) LastIdentity() identity.Identity {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.lastID
}
