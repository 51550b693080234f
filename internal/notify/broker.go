package notify

import (
	"context"
	"fmt"
	"sync"
)

// Broker fans published events out to every live subscription registered for
// the event's provider. The scheduling service depends only on this
// interface; the backend (in-process or Redis) is chosen at startup.
type Broker interface {
	// Subscribe registers a new delivery queue for the provider and returns
	// the handle the caller drains via Events().
	Subscribe(ctx context.Context, providerID int64) (*Subscription, error)

	// Unsubscribe tears the subscription down. Idempotent: surrendering an
	// already-removed handle is a no-op.
	Unsubscribe(sub *Subscription)

	// Publish delivers the event to all live subscriptions matching
	// ev.ProviderID. It never blocks on a slow subscriber.
	Publish(ctx context.Context, ev Event) error

	// Close tears down every subscription and backend resource.
	Close() error
}

// Subscription is one live registration for a provider's events. The
// delivery channel is buffered; when a subscriber stops draining, new events
// for it are dropped rather than blocking the publisher.
type Subscription struct {
	providerID int64
	ch         chan Event
	closeOnce  sync.Once
	cancel     context.CancelFunc // set by backends with a listener goroutine
}

func newSubscription(providerID int64, buffer int) *Subscription {
	return &Subscription{
		providerID: providerID,
		ch:         make(chan Event, buffer),
	}
}

func (s *Subscription) ProviderID() int64 {
	return s.providerID
}

// Events is the drain surface. The channel is closed once the subscription
// is unsubscribed or the broker shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// deliver enqueues without blocking. Returns false when the buffer is full
// and the event was dropped.
func (s *Subscription) deliver(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// stop signals the backend listener, if any. Deliveries cease within one
// listener wait interval, not synchronously.
func (s *Subscription) stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// close must only be called by the goroutine that owns delivery to ch: the
// memory broker under its write lock, the redis listener on exit.
func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.ch)
	})
}

// providerChannel derives the routing key for a provider's events.
func providerChannel(providerID int64) string {
	return fmt.Sprintf("appointments.provider.%d", providerID)
}
