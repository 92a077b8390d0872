package event_bus

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishTyped(t *testing.T) {
	// given
	bus := NewEventBus()
	var received []CalendarEventChanged
	SubscribeTyped(bus, CalendarEventCreatedType, func(e EventT[CalendarEventChanged]) error {
		received = append(received, e.Data)
		return nil
	})
	payload := CalendarEventChanged{UserId: 1, CalendarId: 2, EventId: uuid.New()}

	// when
	err := bus.Publish(NewEvent(context.Background(), CalendarEventCreatedType, payload))

	// then
	require.NoError(t, err)
	assert.Equal(t, []CalendarEventChanged{payload}, received)
}

func TestEventBus_IgnoresOtherPayloadTypes(t *testing.T) {
	// given
	bus := NewEventBus()
	called := false
	SubscribeTyped(bus, CalendarEventCreatedType, func(e EventT[CalendarEventChanged]) error {
		called = true
		return nil
	})

	// when
	err := bus.Publish(NewEvent(context.Background(), CalendarEventCreatedType, "not a payload"))

	// then
	require.NoError(t, err)
	assert.False(t, called)
}

func TestEventBus_CollectsErrorsAndPanics(t *testing.T) {
	// given
	bus := NewEventBus()
	var order []int
	bus.Subscribe(CalendarEventDeletedType, func(e Event) error {
		order = append(order, 1)
		return errors.New("first failed")
	})
	bus.Subscribe(CalendarEventDeletedType, func(e Event) error {
		order = append(order, 2)
		panic("boom")
	})
	bus.Subscribe(CalendarEventDeletedType, func(e Event) error {
		order = append(order, 3)
		return nil
	})

	// when
	err := bus.Publish(NewEvent(context.Background(), CalendarEventDeletedType, nil))

	// then
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 handler(s) failed")
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	// given
	bus := NewEventBus()
	calls := 0
	unsubscribe := bus.Subscribe(CalendarEventUpdatedType, func(e Event) error {
		calls++
		return nil
	})

	// when
	unsubscribe()
	err := bus.Publish(NewEvent(context.Background(), CalendarEventUpdatedType, nil))

	// then
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}

func TestEventBus_CancelledContext(t *testing.T) {
	// given
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// when
	err := bus.Publish(NewEvent(ctx, CalendarEventCreatedType, nil))

	// then
	assert.ErrorIs(t, err, context.Canceled)
}
