package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// MemoryBroker is the in-process backend: live subscriptions are held in a
// provider-keyed table and publish fans out by enqueueing onto each
// subscription's own buffered channel.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[int64]map[*Subscription]struct{}
	buffer int
	closed bool
	log    zerolog.Logger
}

func NewMemoryBroker(buffer int, log zerolog.Logger) *MemoryBroker {
	return &MemoryBroker{
		subs:   make(map[int64]map[*Subscription]struct{}),
		buffer: buffer,
		log:    log.With().Str("component", "memory_broker").Logger(),
	}
}

func (b *MemoryBroker) Subscribe(_ context.Context, providerID int64) (*Subscription, error) {
	sub := newSubscription(providerID, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.close()
		return sub, nil
	}

	if b.subs[providerID] == nil {
		b.subs[providerID] = make(map[*Subscription]struct{})
	}
	b.subs[providerID][sub] = struct{}{}

	b.log.Debug().
		Int64("provider_id", providerID).
		Int("subscribers", len(b.subs[providerID])).
		Msg("subscriber registered")

	return sub, nil
}

func (b *MemoryBroker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[sub.providerID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}

	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.providerID)
	}
	sub.close()

	b.log.Debug().
		Int64("provider_id", sub.providerID).
		Int("subscribers", len(set)).
		Msg("subscriber removed")
}

// Publish enqueues the event onto every live subscription for the provider.
// A provider with no subscribers is a silent no-op. Delivery happens under
// the read lock so a concurrent Unsubscribe cannot close a channel
// mid-delivery; the enqueue itself never blocks.
func (b *MemoryBroker) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[ev.ProviderID] {
		if !sub.deliver(ev) {
			b.log.Warn().
				Int64("provider_id", ev.ProviderID).
				Str("kind", ev.Kind).
				Msg("subscriber queue full, event dropped")
		}
	}

	return nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for providerID, set := range b.subs {
		for sub := range set {
			sub.close()
		}
		delete(b.subs, providerID)
	}

	return nil
}
