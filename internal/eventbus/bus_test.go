package eventbus

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	bus := New(testLog())
	subA := bus.Subscribe()
	subB := bus.Subscribe()
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	bus.Publish(Event{Type: SessionCreated, Data: SessionCreatedData{}})

	evtA := <-subA.C
	evtB := <-subB.C
	require.Equal(t, SessionCreated, evtA.Type)
	require.Equal(t, SessionCreated, evtB.Type)
	require.NotEmpty(t, evtA.ID)
	require.False(t, evtA.CreatedAt.IsZero())
}

func TestPublish_DropsAndIncrementsLagWhenQueueFull(t *testing.T) {
	bus := New(testLog())
	bus.queueSize = 2 // shrink the queue depth so the test doesn't need 1024 publishes
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: TransferDetected})
	}

	require.Greater(t, sub.Lagged(), uint64(0))
}

func TestUnsubscribe_StopsDeliveryAndClosesChannel(t *testing.T) {
	bus := New(testLog())
	sub := bus.Subscribe()

	sub.Unsubscribe()
	bus.Publish(Event{Type: SessionExpired})

	_, ok := <-sub.C
	require.False(t, ok, "channel should be closed after Unsubscribe")
}

func TestSubscriberCount(t *testing.T) {
	bus := New(testLog())
	require.Equal(t, 0, bus.SubscriberCount())

	sub := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	sub.Unsubscribe()
	require.Equal(t, 0, bus.SubscriberCount())
}
