package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	received []Event
	failOn   string
	name     string
	log      *[]string
}

func (r *recordingSubscriber) HandleEvent(_ context.Context, event Event) error {
	if event.Type == r.failOn {
		return errors.New("boom")
	}
	r.received = append(r.received, event)
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
	return nil
}

func TestBus_PublishDeliversToAllSubscribersInOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	first := &recordingSubscriber{name: "first", log: &order}
	second := &recordingSubscriber{name: "second", log: &order}

	sub1, err := bus.Register(first)
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := bus.Register(second)
	require.NoError(t, err)
	defer sub2.Close()

	require.NoError(t, bus.Publish(context.Background(), NewEvent(TypeCycleStart, "run-1", nil)))

	require.Equal(t, []string{"first", "second"}, order)
	require.Equal(t, TypeCycleStart, first.received[0].Type)
	require.Equal(t, TypeCycleStart, second.received[0].Type)
}

func TestBus_RegisterRejectsNilSubscriber(t *testing.T) {
	bus := NewBus()
	_, err := bus.Register(nil)
	require.Error(t, err)
}

func TestBus_CloseStopsDelivery(t *testing.T) {
	bus := NewBus()
	sub := &recordingSubscriber{}
	handle, err := bus.Register(sub)
	require.NoError(t, err)

	require.NoError(t, handle.Close())
	require.NoError(t, handle.Close()) // idempotent

	require.NoError(t, bus.Publish(context.Background(), NewEvent(TypeCycleStart, "run-1", nil)))
	require.Empty(t, sub.received)
}

func TestBus_SubscriberErrorStopsIteration(t *testing.T) {
	bus := NewBus()
	failing := &recordingSubscriber{failOn: TypeCycleStart}
	sub, err := bus.Register(failing)
	require.NoError(t, err)
	defer sub.Close()

	err = bus.Publish(context.Background(), NewEvent(TypeCycleStart, "run-1", nil))
	require.Error(t, err)
}

func TestPublish_SwallowsNilBus(t *testing.T) {
	require.NotPanics(t, func() {
		Publish(context.Background(), nil, TypeCycleStart, "run-1", nil)
	})
}

func TestPublish_NilFieldsDefaultToEmptyMap(t *testing.T) {
	bus := NewBus()
	sub := &recordingSubscriber{}
	handle, err := bus.Register(sub)
	require.NoError(t, err)
	defer handle.Close()

	Publish(context.Background(), bus, TypeCycleStart, "run-1", nil)
	require.NotNil(t, sub.received[0].Fields)
}
