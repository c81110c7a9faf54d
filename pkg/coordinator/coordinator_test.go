package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeMatchesPrefix(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	sub := bus.Subscribe("/schema/default")
	defer sub.Close()

	bus.Publish(Event{Key: "/schema/default/logs/app", Type: EventPut})
	bus.Publish(Event{Key: "/lock/default/logs/app", Type: EventPut})

	select {
	case ev := <-sub.C:
		require.Equal(t, "/schema/default/logs/app", ev.Key)
	case <-time.After(time.Second):
		t.Fatal("expected matching event")
	}

	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event delivered: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	sub := bus.Subscribe("/lock")
	require.Equal(t, 1, bus.SubscriberCount())
	sub.Close()
	require.Equal(t, 0, bus.SubscriberCount())

	bus.Publish(Event{Key: "/lock/x", Type: EventPut})
	_, ok := <-sub.C
	require.False(t, ok)
}
