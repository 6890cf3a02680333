package notifylist

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/maxpert/notifylist/notify"
	"github.com/maxpert/notifylist/telemetry"
	"github.com/rs/zerolog/log"
)

// WatchedClasses are the notification classes that carry set, expire and expired.
const WatchedClasses = notify.ClassString | notify.ClassGeneric | notify.ClassExpired

// Subscription attaches a handler to the keyspace exactly once.
// States: inactive -> active; a failed attempt stays inactive so the next call retries.
type Subscription struct {
	mu      sync.Mutex
	source  notify.Source
	handler notify.Handler
	cancel  func()
	active  bool
	closed  bool
}

// NewSubscription creates an inactive subscription.
func NewSubscription(source notify.Source, handler notify.Handler) *Subscription {
	return &Subscription{
		source:  source,
		handler: handler,
	}
}

// EnsureActive subscribes on the first successful call; later calls do nothing.
func (s *Subscription) EnsureActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.active {
		return nil
	}

	cancel, err := s.source.Subscribe(WatchedClasses, s.handler)
	if err != nil {
		telemetry.ActivationsTotal.With("failed").Inc()
		return errors.Mark(errors.Wrap(err, ErrActivation.Error()), ErrActivation)
	}

	s.cancel = cancel
	s.active = true
	telemetry.ActivationsTotal.With("ok").Inc()
	log.Info().Msg("Subscribed to keyspace notifications")

	return nil
}

// Active reports whether the keyspace subscription is established.
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Close cancels the keyspace subscription. It is only called on teardown.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.active && s.cancel != nil {
		s.cancel()
	}
	s.active = false
}
