// Package events fans auth state changes out to subscribers.
//
// Every subscriber gets its own unbounded queue drained by a pump goroutine,
// so Publish never blocks on a slow consumer and each subscriber sees events
// in publish order exactly once.
package events

import (
	"sync"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
)

// Bus is a publish/subscribe hub for models.AuthEvent.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber. Events published before the call
// are not delivered. Subscribing to a closed bus returns an already closed
// subscription.
func (b *Bus) Subscribe() *Subscription {
	s := newSubscription(b)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.shutdown()
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish queues ev for every current subscriber.
func (b *Bus) Publish(ev models.AuthEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.enqueue(ev)
	}
}

// Close closes every subscription; later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
	b.mu.Unlock()

	for s := range subs {
		s.shutdown()
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription receives events on C until Close.
type Subscription struct {
	bus *Bus
	out chan models.AuthEvent

	mu     sync.Mutex
	queue  []models.AuthEvent
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
	closed bool
}

func newSubscription(b *Bus) *Subscription {
	s := &Subscription{
		bus:  b,
		out:  make(chan models.AuthEvent),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.pump()
	return s
}

// C is closed once the subscription is disposed. Pending events are
// dropped on Close.
func (s *Subscription) C() <-chan models.AuthEvent {
	return s.out
}

// Close disposes the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.shutdown()
}

func (s *Subscription) shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) enqueue(ev models.AuthEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = models.AuthEvent{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
