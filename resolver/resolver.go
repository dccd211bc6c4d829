package resolver

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/attendhq/go-session-coordinator/identity"
	interrors "github.com/attendhq/go-session-coordinator/internal/errors"
	"github.com/attendhq/go-session-coordinator/profiles"
	"github.com/attendhq/go-session-coordinator/provider"
)

// Stores holds the profile lookup dependencies for the Resolver.
type Stores struct {
	Primary   profiles.Store          // Main profile lookups by id and email
	Secondary profiles.SecondaryStore // Optional richer data, merged best-effort
}

// Resolver turns a raw provider session into an enriched Identity via an
// ordered fallback chain: by-id lookup, by-email lookup, then a minimal
// identity built from the session itself. A session that exists always
// resolves to some identity; only credential failures are fatal.
type Resolver struct {
	stores Stores
	idp    provider.IdentityProvider
	logger zerolog.Logger
}

// Option modifies the Resolver instance.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New initializes a Resolver with required dependencies.
func New(idp provider.IdentityProvider, s Stores, options ...Option) (*Resolver, error) {
	if idp == nil {
		return nil, errors.New("[resolver.New] identity provider is required")
	}
	if s.Primary == nil {
		return nil, errors.New("[resolver.New] primary profile store is required")
	}

	r := &Resolver{
		stores: s,
		idp:    idp,
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Resolve enriches raw into an Identity. It fails with
// interrors.ErrIdentityMismatch when the provider's current session no longer
// matches raw's subject (an interleaved user switch), and with
// interrors.ErrRefreshToken when a credential failure is detected anywhere in
// the chain. Every other lookup failure is recovered by falling through to
// the next step.
func (r *Resolver) Resolve(ctx context.Context, raw identity.RawSession) (identity.Identity, error) {
	// The session that triggered this resolution must still be the
	// provider's current one. User B signing in while user A's lookup is in
	// flight must not produce an identity for A.
	current, err := r.idp.CurrentSession(ctx)
	if err != nil {
		if interrors.Is(err, interrors.ErrRefreshToken) {
			return identity.Identity{}, err
		}
		return identity.Identity{}, errors.Wrap(err, "[Resolver.Resolve] CurrentSession")
	}
	if current == nil || current.Subject != raw.Subject {
		return identity.Identity{}, interrors.ErrIdentityMismatch
	}

	// Primary lookup by subject id.
	profile, err := r.stores.Primary.FindByID(ctx, raw.Subject)
	if err == nil {
		return r.enriched(ctx, profile, raw), nil
	}
	if interrors.Is(err, interrors.ErrRefreshToken) {
		return identity.Identity{}, err
	}
	r.logger.Debug().Err(err).Str("subject", raw.Subject).Msg("by-id profile lookup failed, trying email")

	// Fallback lookup by email.
	if raw.Email != "" {
		profile, err = r.stores.Primary.FindByEmail(ctx, raw.Email)
		if err == nil {
			return r.enriched(ctx, profile, raw), nil
		}
		if interrors.Is(err, interrors.ErrRefreshToken) {
			return identity.Identity{}, err
		}
		r.logger.Debug().Err(err).Str("subject", raw.Subject).Msg("by-email profile lookup failed, degrading")
	}

	// Degraded minimal identity. A signed-in user with no reachable profile
	// stays authenticated rather than being dropped.
	return raw.Minimal(), nil
}

// enriched converts a found profile into an Identity, merging in any richer
// secondary-store data first. Secondary failures are logged and ignored.
func (r *Resolver) enriched(ctx context.Context, profile *profiles.Profile, raw identity.RawSession) identity.Identity {
	if r.stores.Secondary != nil {
		richer, err := r.stores.Secondary.Enrich(ctx, raw.Subject)
		if err != nil {
			r.logger.Debug().Err(err).Str("subject", raw.Subject).Msg("secondary profile enrichment failed")
		} else {
			profile.Merge(richer)
		}
	}
	return profile.Identity(raw)
}
