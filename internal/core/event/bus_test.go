package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFillsIDAndTimestamp(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(EventDownloadCompleted, func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventDownloadCompleted, Payload: DownloadEvent{ID: "a"}}))
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventDownloadFailed}))

	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Equal(t, "a", got[0].Payload.(DownloadEvent).ID)
}

func TestHandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewBus()
	calls := 0
	bus.Subscribe(EventConnectionLost, func(context.Context, Event) error {
		calls++
		return errors.New("boom")
	})
	bus.Subscribe(EventConnectionLost, func(context.Context, Event) error {
		calls++
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventConnectionLost}))
	assert.Equal(t, 2, calls)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsub := bus.Subscribe(EventSyncCompleted, func(context.Context, Event) error {
		calls++
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventSyncCompleted}))
	unsub()
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventSyncCompleted}))
	assert.Equal(t, 1, calls)
}

func TestAllEventsRunsAfterTypedHandlers(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(AllEvents, func(_ context.Context, e Event) error {
		order = append(order, "all:"+string(e.Type))
		return nil
	})
	bus.Subscribe(EventVideoDeleted, func(context.Context, Event) error {
		order = append(order, "typed")
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventVideoDeleted}))
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventSyncCompleted}))
	assert.Equal(t, []string{"typed", "all:video.deleted", "all:sync.completed"}, order)
}

func TestUnsubscribeTwiceKeepsOtherHandlers(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsub := bus.Subscribe(EventConnectionRestored, func(context.Context, Event) error { return nil })
	bus.Subscribe(EventConnectionRestored, func(context.Context, Event) error {
		calls++
		return nil
	})

	unsub()
	unsub()
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventConnectionRestored}))
	assert.Equal(t, 1, calls)
}
