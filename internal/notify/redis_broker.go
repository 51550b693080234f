package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBroker is the queue-backed backend. Publish pushes the event onto the
// provider's Redis Pub/Sub channel; every subscription runs its own consumer
// goroutine that bridges received messages into the subscription's local
// queue. Keeping one consumer per subscription means a slow or broken
// subscriber never affects another provider's stream.
type RedisBroker struct {
	client *redis.Client
	buffer int
	poll   time.Duration
	log    zerolog.Logger

	rootCtx    context.Context
	cancelRoot context.CancelFunc

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewRedisBroker(client *redis.Client, buffer int, poll time.Duration, log zerolog.Logger) *RedisBroker {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBroker{
		client:     client,
		buffer:     buffer,
		poll:       poll,
		log:        log.With().Str("component", "redis_broker").Logger(),
		rootCtx:    ctx,
		cancelRoot: cancel,
		subs:       make(map[*Subscription]struct{}),
	}
}

// Publish is fire-and-forget: a failed round trip to Redis is logged and
// swallowed so a scheduling decision that already committed is never rolled
// back over a lost notification.
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error().Err(err).Str("kind", ev.Kind).Msg("marshal event")
		return nil
	}

	channel := providerChannel(ev.ProviderID)
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		b.log.Warn().Err(err).
			Str("channel", channel).
			Str("kind", ev.Kind).
			Msg("publish failed, notification dropped")
	}

	return nil
}

func (b *RedisBroker) Subscribe(_ context.Context, providerID int64) (*Subscription, error) {
	sub := newSubscription(providerID, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub, nil
	}

	listenCtx, cancel := context.WithCancel(b.rootCtx)
	sub.cancel = cancel
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	// Each subscription gets its own Pub/Sub connection, subscribed to the
	// provider's routing key.
	pubsub := b.client.Subscribe(listenCtx, providerChannel(providerID))

	go b.listen(listenCtx, sub, pubsub)

	b.log.Debug().Int64("provider_id", providerID).Msg("subscriber registered")

	return sub, nil
}

// Unsubscribe signals the listener and drops the bookkeeping entry. The
// listener observes the signal within one poll interval, closes its
// connection and then the delivery channel; callers must not assume the
// goroutine has exited when Unsubscribe returns.
func (b *RedisBroker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	if _, ok := b.subs[sub]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, sub)
	b.mu.Unlock()

	sub.stop()

	b.log.Debug().Int64("provider_id", sub.providerID).Msg("subscriber removed")
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	b.cancelRoot()
	return nil
}

// listen consumes the subscription's Pub/Sub connection with a bounded wait
// so the stop signal is observed between receives, and bridges each decoded
// event into the local delivery queue.
func (b *RedisBroker) listen(ctx context.Context, sub *Subscription, pubsub *redis.PubSub) {
	defer sub.close()
	defer func() {
		if err := pubsub.Close(); err != nil {
			b.log.Debug().Err(err).Msg("close pubsub connection")
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := pubsub.ReceiveTimeout(ctx, b.poll)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			b.log.Warn().Err(err).
				Int64("provider_id", sub.providerID).
				Msg("pubsub receive error")

			// Back off instead of hot-looping on a broken connection.
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.poll):
			}
			continue
		}

		m, ok := msg.(*redis.Message)
		if !ok {
			// Subscription confirmations and pongs carry no event.
			continue
		}

		ev, err := decodeEvent([]byte(m.Payload))
		if err != nil {
			b.log.Warn().Err(err).
				Str("channel", m.Channel).
				Msg("undecodable event payload, skipped")
			continue
		}

		if !sub.deliver(ev) {
			b.log.Warn().
				Int64("provider_id", sub.providerID).
				Str("kind", ev.Kind).
				Msg("subscriber queue full, event dropped")
		}
	}
}

func decodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Kind == "" {
		return Event{}, errors.New("decode event: missing kind")
	}
	return ev, nil
}
