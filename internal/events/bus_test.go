package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/maxnotes/storefront/internal/events"
)

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	notifier := &captureNotifier{}
	bus := &events.Bus{
		Store:     events.RedisStore{R: client, Stream: "events:test"},
		Notifiers: []events.Notifier{nil, notifier},
		Now:       func() time.Time { return fixed },
	}

	ev, err := bus.Emit(context.Background(), events.TopicCheckoutCompleted, "MXN-1", events.CheckoutPayload{Reference: "MXN-1", Units: 3})
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, fixed, ev.OccurredAt)
	require.Len(t, notifier.events, 1)

	var payload events.CheckoutPayload
	require.NoError(t, notifier.events[0].Decode(&payload))
	require.Equal(t, 3, payload.Units)

	entries, err := client.XRange(context.Background(), "events:test", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, events.TopicCheckoutCompleted, entries[0].Values["topic"])
	require.Equal(t, "MXN-1", entries[0].Values["aggregateId"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := &events.Bus{}
	_, err := bus.Emit(context.Background(), " ", "x", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicCheckoutStarted, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicCheckoutStarted, "x", []byte("{bad"))
	require.Error(t, err)

	ev, err := bus.Emit(context.Background(), events.TopicCheckoutStarted, "x", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(ev.Payload))

	var nilBus *events.Bus
	_, err = nilBus.Emit(context.Background(), events.TopicCheckoutStarted, "x", nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("smtp down")}
	ok := &captureNotifier{}
	bus := &events.Bus{Notifiers: []events.Notifier{failing, ok}}

	ev, err := bus.Emit(context.Background(), events.TopicCheckoutFailed, "MXN-2", map[string]string{"reason": "declined"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "smtp down")
	require.Equal(t, "MXN-2", ev.AggregateID)
	require.Len(t, ok.events, 1)
}
