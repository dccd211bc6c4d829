package repofake

import (
	"context"
	"sync"

	interrors "github.com/attendhq/go-session-coordinator/internal/errors"
	"github.com/attendhq/go-session-coordinator/profiles"
)

var _ profiles.Store = (*FakeProfileStore)(nil)
var _ profiles.SecondaryStore = (*FakeProfileStore)(nil)

// FakeProfileStore is an in-memory profiles.Store for tests. Individual
// lookup paths can be forced to fail to exercise the resolver's fallback
// chain.
type FakeProfileStore struct {
	lock     sync.RWMutex
	byID     map[string]*profiles.Profile
	byEmail  map[string]*profiles.Profile
	richer   map[string]*profiles.Profile
	idErr    error
	emailErr error
}

func NewFakeProfileStore() *FakeProfileStore {
	return &FakeProfileStore{
		byID:    make(map[string]*profiles.Profile),
		byEmail: make(map[string]*profiles.Profile),
		richer:  make(map[string]*profiles.Profile),
	}
}

// Upsert stores a profile under both its subject id and email.
func (ps *FakeProfileStore) Upsert(profile *profiles.Profile) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	ps.byID[profile.SubjectID] = profile
	if profile.Email != "" {
		ps.byEmail[profile.Email] = profile
	}
}

// UpsertRicher stores secondary enrichment data for a subject.
func (ps *FakeProfileStore) UpsertRicher(subjectID string, profile *profiles.Profile) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	ps.richer[subjectID] = profile
}

// FailByID forces FindByID to return err until called again with nil.
func (ps *FakeProfileStore) FailByID(err error) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	ps.idErr = err
}

// FailByEmail forces FindByEmail to return err until called again with nil.
func (ps *FakeProfileStore) FailByEmail(err error) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	ps.emailErr = err
}

func (ps *FakeProfileStore) FindByID(_ context.Context, subjectID string) (*profiles.Profile, error) {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	if ps.idErr != nil {
		return nil, ps.idErr
	}
	profile, ok := ps.byID[subjectID]
	if !ok {
		return nil, interrors.ErrProfileNotFound
	}
	return cloneProfile(profile), nil
}

func (ps *FakeProfileStore) FindByEmail(_ context.Context, email string) (*profiles.Profile, error) {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	if ps.emailErr != nil {
		return nil, ps.emailErr
	}
	profile, ok := ps.byEmail[email]
	if !ok {
		return nil, interrors.ErrProfileNotFound
	}
	return cloneProfile(profile), nil
}

func (ps *FakeProfileStore) Enrich(_ context.Context, subjectID string) (*profiles.Profile, error) {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	profile, ok := ps.richer[subjectID]
	if !ok {
		return nil, nil
	}
	return cloneProfile(profile), nil
}

func cloneProfile(p *profiles.Profile) *profiles.Profile {
	clone := *p
	if p.Extra != nil {
		clone.Extra = make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			clone.Extra[k] = v
		}
	}
	return &clone
}
