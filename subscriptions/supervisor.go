// Package subscriptions owns the set of live-update subscriptions and the
// location monitor, keeping both consistent with the current identity. The
// set is rebuilt when the bound identity's (id, role) pair changes and torn
// down entirely when the identity goes away; nothing else touches it.
package subscriptions

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/attendhq/go-session-coordinator/geomonitor"
	"github.com/attendhq/go-session-coordinator/identity"
	"github.com/attendhq/go-session-coordinator/livechannel"
)

// Live-update topic names, one subscription per topic per identity.
const (
	TopicNotifications = "notifications"
	TopicAttendance    = "attendance"
	TopicWorkMode      = "work_mode"
)

// defaultTopics is the required topic set for every authenticated identity.
var defaultTopics = []string{TopicNotifications, TopicAttendance, TopicWorkMode}

// filterColumn narrows every topic subscription to the subject's own rows.
const filterColumn = "user_id"

// Supervisor reconciles the open subscription set against the current
// identity. Reconcile is serialized; it is only ever called from the
// coordinator's committed-state-transition point, but the internal mutex
// keeps the set safe regardless of caller discipline.
type Supervisor struct {
	channels livechannel.Provider
	monitor  geomonitor.Monitor
	onEvent  livechannel.OnEvent
	onError  livechannel.OnError
	logger   zerolog.Logger
	topics   []string

	lock    sync.Mutex
	bound   *identity.Identity
	handles map[string]livechannel.Handle
}

// Option modifies the Supervisor instance.
type Option func(*Supervisor)

// WithLogger sets the supervisor's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithTopics overrides the default topic set.
func WithTopics(topics ...string) Option {
	return func(s *Supervisor) {
		s.topics = topics
	}
}

// New initializes a Supervisor. onEvent and onError receive every topic
// event and every subscription-level failure; a failing channel is reported
// but never tears down its siblings.
func New(channels livechannel.Provider, monitor geomonitor.Monitor, onEvent livechannel.OnEvent, onError livechannel.OnError, options ...Option) (*Supervisor, error) {
	if channels == nil {
		return nil, errors.New("[subscriptions.New] live channel provider is required")
	}
	if monitor == nil {
		monitor = geomonitor.Noop{}
	}
	if onEvent == nil {
		onEvent = func(livechannel.Event) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	s := &Supervisor{
		channels: channels,
		monitor:  monitor,
		onEvent:  onEvent,
		onError:  onError,
		logger:   zerolog.Nop(),
		topics:   defaultTopics,
		handles:  make(map[string]livechannel.Handle),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Reconcile makes the open subscription set match current. A nil current (or
// one with no stable subject id) closes everything. An identity whose
// (id, role) pair differs from the bound one triggers a full teardown then a
// full rebuild; an unchanged identity is a no-op so frequent re-resolutions
// such as periodic token refresh cause no churn. A topic whose subscribe
// failed during the rebuild stays unopened and is not retried while the
// identity is unchanged; the next identity change attempts it again.
func (s *Supervisor) Reconcile(ctx context.Context, current *identity.Identity) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if current == nil || current.ID == "" {
		s.teardownLocked()
		s.bound = nil
		return
	}

	if s.bound != nil && s.bound.Same(*current) {
		return
	}

	// Teardown always completes before any new handle is opened.
	s.teardownLocked()
	s.openLocked(ctx, *current)
	bound := *current
	s.bound = &bound
}

// Close tears down every open subscription and the monitor. Idempotent.
func (s *Supervisor) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.teardownLocked()
	s.bound = nil
}

// OpenTopics returns the names of currently open subscriptions, for
// observability.
func (s *Supervisor) OpenTopics() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	topics := make([]string, 0, len(s.handles))
	for name := range s.handles {
		topics = append(topics, name)
	}
	return topics
}

func (s *Supervisor) teardownLocked() {
	for name, handle := range s.handles {
		handle.Close()
		delete(s.handles, name)
	}
	s.monitor.Stop()
}

func (s *Supervisor) openLocked(ctx context.Context, id identity.Identity) {
	filter := &livechannel.Filter{Column: filterColumn, Equals: id.ID}

	for _, topic := range s.topics {
		if _, open := s.handles[topic]; open {
			// Duplicate reconcile for an unchanged identity must never
			// double-subscribe.
			continue
		}
		handle, err := s.channels.Subscribe(ctx, topic, filter, s.onEvent, s.errorReporter(topic))
		if err != nil {
			s.logger.Error().Err(err).Str("topic", topic).Msg("failed to open subscription")
			s.onError(errors.Wrapf(err, "[Supervisor.Reconcile] subscribe %q", topic))
			continue
		}
		s.handles[topic] = handle
	}

	if err := s.monitor.Start(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("subject", id.ID).Msg("failed to start location monitor")
		s.onError(errors.Wrap(err, "[Supervisor.Reconcile] location monitor start"))
	}
}

// errorReporter tags subscription-level failures with their topic before
// passing them upward. Errors never affect sibling subscriptions.
func (s *Supervisor) errorReporter(topic string) livechannel.OnError {
	return func(err error) {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("subscription error")
		s.onError(errors.Wrapf(err, "subscription %q", topic))
	}
}
