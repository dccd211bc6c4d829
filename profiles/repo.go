package profiles

import "context"

// Store looks up employee profiles. Lookups that find nothing return
// interrors.ErrProfileNotFound; infrastructure failures return
// interrors.ErrTransientLookup so the resolver can fall through its chain.
type Store interface {
	FindByID(ctx context.Context, subjectID string) (*Profile, error)
	FindByEmail(ctx context.Context, email string) (*Profile, error)
}

// SecondaryStore holds richer, optional profile data merged best-effort on
// top of the primary record. A nil result with a nil error means "no richer
// data", which is never treated as a failure.
type SecondaryStore interface {
	Enrich(ctx context.Context, subjectID string) (*Profile, error)
}
