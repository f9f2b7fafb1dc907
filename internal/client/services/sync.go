package services

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/autherr"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/client"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/events"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// EventSource hands out auth event subscriptions.
type EventSource interface {
	Subscribe() *events.Subscription
}

// Cleaner removes local auth artifacts.
type Cleaner interface {
	Clear(ctx context.Context) (CleanupReport, error)
}

// SessionSynchronizer mirrors auth events to the backend session endpoint,
// one event at a time in emission order.
type SessionSynchronizer struct {
	source   EventSource
	endpoint client.SessionEndpoint
	guard    *GuardedCaller
	policy   retry.Policy
	cleaner  Cleaner
	log      logging.Logger

	mu   sync.Mutex
	sub  *events.Subscription
	done chan struct{}
	// handled is called after each event, for tests.
	handled func(ev models.AuthEvent, err error)
}

func NewSessionSynchronizer(source EventSource, endpoint client.SessionEndpoint, guard *GuardedCaller, policy retry.Policy, cleaner Cleaner, log logging.Logger) *SessionSynchronizer {
	return &SessionSynchronizer{
		source:   source,
		endpoint: endpoint,
		guard:    guard,
		policy:   policy,
		cleaner:  cleaner,
		log:      log,
	}
}

// Start subscribes and begins consuming events. Calling Start twice is a no-op.
func (s *SessionSynchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return
	}

	s.sub = s.source.Subscribe()
	s.done = make(chan struct{})
	go s.consume(context.WithoutCancel(ctx), s.sub, s.done)
}

// Stop disposes the subscription and waits for the event in progress.
func (s *SessionSynchronizer) Stop() {
	s.mu.Lock()
	sub, done := s.sub, s.done
	s.sub, s.done = nil, nil
	s.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Close()
	<-done
}

func (s *SessionSynchronizer) consume(ctx context.Context, sub *events.Subscription, done chan struct{}) {
	defer close(done)
	for ev := range sub.C() {
		err := s.handle(ctx, ev)
		if s.handled != nil {
			s.handled(ev, err)
		}
	}
}

func (s *SessionSynchronizer) handle(ctx context.Context, ev models.AuthEvent) error {
	switch ev.Kind {
	case models.EventSignedIn, models.EventTokenRefreshed:
		if ev.Session == nil {
			return nil
		}
		err := s.guard.Do(ctx, "session.push", s.policy, func(ctx context.Context) error {
			return s.endpoint.PushSession(ctx, ev.Kind, ev.Session)
		})
		if err != nil {
			s.log.Error(ctx, "failed to sync session to server", "event", ev.Kind, "error", err)
			return err
		}
		s.log.Debug(ctx, "session synced to server", "event", ev.Kind, "user_id", ev.Session.UserID())
		return nil

	case models.EventSignedOut:
		var partial error
		err := s.guard.Do(ctx, "session.delete", s.policy, func(ctx context.Context) error {
			return s.endpoint.DeleteSession(ctx)
		})
		if err != nil {
			partial = autherr.New(autherr.KindSignOutPartialFailure, "server session not cleared", err)
			s.log.Warn(ctx, "sign-out incomplete on server, clearing local state anyway", "error", partial)
		}

		if _, cerr := s.cleaner.Clear(ctx); cerr != nil {
			s.log.Error(ctx, "failed to clear local auth artifacts", "error", cerr)
			return errors.Join(partial, cerr)
		}
		return partial
	}
	return nil
}
