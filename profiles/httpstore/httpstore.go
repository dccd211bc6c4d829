// Package httpstore implements profiles.Store against the HR backend's REST
// API. Lookup failures are classified so the resolver can tell a transient
// outage from a credential problem: 401/403 short-circuit the whole
// resolution, everything else falls through the chain.
package httpstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	interrors "github.com/attendhq/go-session-coordinator/internal/errors"
	"github.com/attendhq/go-session-coordinator/profiles"
)

const defaultTimeout = 10 * time.Second

// Store is an HTTP-backed profiles.Store.
type Store struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

// Option modifies the Store instance.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithHTTPClient overrides the default HTTP client (primarily for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		s.client = client
	}
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.client.Timeout = timeout
	}
}

// New initializes a Store for the given API base URL.
func New(baseURL, apiKey string, options ...Option) (*Store, error) {
	if baseURL == "" {
		return nil, errors.New("[httpstore.New] base URL is required")
	}

	s := &Store{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *Store) FindByID(ctx context.Context, subjectID string) (*profiles.Profile, error) {
	return s.get(ctx, fmt.Sprintf("/v1/profiles/%s", url.PathEscape(subjectID)))
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*profiles.Profile, error) {
	return s.get(ctx, "/v1/profiles?email="+url.QueryEscape(email))
}

// Enrich fetches the extended profile record. A 404 here is simply "no
// richer data" rather than a failure.
func (s *Store) Enrich(ctx context.Context, subjectID string) (*profiles.Profile, error) {
	profile, err := s.get(ctx, fmt.Sprintf("/v1/profiles/%s/extended", url.PathEscape(subjectID)))
	if interrors.Is(err, interrors.ErrProfileNotFound) {
		return nil, nil
	}
	return profile, err
}

func (s *Store) get(ctx context.Context, path string) (*profiles.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.get] building request")
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, interrors.Wrapf(interrors.ErrTransientLookup, "GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, interrors.ErrProfileNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, interrors.Wrapf(interrors.ErrRefreshToken, "GET %s: status %d", path, resp.StatusCode)
	default:
		s.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("profile lookup failed")
		return nil, interrors.Wrapf(interrors.ErrTransientLookup, "GET %s: status %d", path, resp.StatusCode)
	}

	var profile profiles.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, interrors.Wrapf(interrors.ErrTransientLookup, "GET %s: decoding body: %v", path, err)
	}
	return &profile, nil
}

var _ profiles.Store = (*Store)(nil)
var _ profiles.SecondaryStore = (*Store)(nil)
