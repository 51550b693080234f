package notify

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(providerID int64, msg string) Event {
	return Event{
		Kind:       EventAppointmentBooked,
		ProviderID: providerID,
		Patient:    "Ana Gómez",
		Timestamp:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Message:    msg,
	}
}

func receiveOne(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription channel closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event delivered: %+v", ev)
		}
	default:
	}
}

func TestMemoryBroker_FanOutToAllSubscribers(t *testing.T) {
	b := NewMemoryBroker(8, zerolog.Nop())
	defer b.Close()

	ctx := context.Background()

	var subs []*Subscription
	for i := 0; i < 3; i++ {
		sub, err := b.Subscribe(ctx, 7)
		require.NoError(t, err)
		subs = append(subs, sub)
	}

	ev := testEvent(7, "one")
	require.NoError(t, b.Publish(ctx, ev))

	for _, sub := range subs {
		got := receiveOne(t, sub)
		assert.Equal(t, ev, got)
		assertNoEvent(t, sub)
	}
}

func TestMemoryBroker_PerSubscriberFIFO(t *testing.T) {
	b := NewMemoryBroker(8, zerolog.Nop())
	defer b.Close()

	ctx := context.Background()

	first, err := b.Subscribe(ctx, 7)
	require.NoError(t, err)
	second, err := b.Subscribe(ctx, 7)
	require.NoError(t, err)

	messages := []string{"a", "b", "c"}
	for _, msg := range messages {
		require.NoError(t, b.Publish(ctx, testEvent(7, msg)))
	}

	for _, sub := range []*Subscription{first, second} {
		for _, want := range messages {
			assert.Equal(t, want, receiveOne(t, sub).Message)
		}
	}
}

func TestMemoryBroker_ProviderIsolation(t *testing.T) {
	b := NewMemoryBroker(8, zerolog.Nop())
	defer b.Close()

	ctx := context.Background()

	subA, err := b.Subscribe(ctx, 1)
	require.NoError(t, err)
	subB, err := b.Subscribe(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, testEvent(1, "for provider 1")))

	assert.Equal(t, int64(1), receiveOne(t, subA).ProviderID)
	assertNoEvent(t, subB)
}

func TestMemoryBroker_PublishWithoutSubscribers(t *testing.T) {
	b := NewMemoryBroker(8, zerolog.Nop())
	defer b.Close()

	// No subscribers at all, and none for this provider id.
	require.NoError(t, b.Publish(context.Background(), testEvent(99, "dropped")))
}

func TestMemoryBroker_UnsubscribeIsIdempotent(t *testing.T) {
	b := NewMemoryBroker(8, zerolog.Nop())
	defer b.Close()

	ctx := context.Background()

	sub, err := b.Subscribe(ctx, 7)
	require.NoError(t, err)

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	// The delivery channel is closed and nothing further arrives.
	_, open := <-sub.Events()
	assert.False(t, open)

	require.NoError(t, b.Publish(ctx, testEvent(7, "after unsubscribe")))
}

func TestMemoryBroker_PublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := NewMemoryBroker(1, zerolog.Nop())
	defer b.Close()

	ctx := context.Background()

	stalled, err := b.Subscribe(ctx, 7)
	require.NoError(t, err)
	draining, err := b.Subscribe(ctx, 7)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = b.Publish(ctx, testEvent(7, "flood"))
			// Keep the second subscriber drained.
			select {
			case <-draining.Events():
			default:
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}

	// The stalled subscriber kept its earliest event; later ones were dropped.
	assert.Equal(t, "flood", receiveOne(t, stalled).Message)
}

func TestMemoryBroker_CloseClosesSubscriptions(t *testing.T) {
	b := NewMemoryBroker(8, zerolog.Nop())

	sub, err := b.Subscribe(context.Background(), 7)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, open := <-sub.Events()
	assert.False(t, open)
}
