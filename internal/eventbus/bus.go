package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/metrics"
)

// DefaultQueueSize is the per-subscriber buffer depth (spec.md §4.5).
const DefaultQueueSize = 1024

// Subscription is a bounded, non-blocking consumer handle returned by
// Bus.Subscribe. Callers must range over C until Unsubscribe closes
// it.
type Subscription struct {
	id     uint64
	C      <-chan Event
	ch     chan Event
	bus    *Bus
	Lagged func() uint64
}

// Unsubscribe stops delivery and closes C.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// Bus is the single-producer, multi-consumer broadcast of spec.md
// §4.5. Publish never blocks on a slow subscriber: a subscriber whose
// queue is full has the event dropped and its lag counter incremented
// instead, per spec.md §9's explicit "drop, don't block the writer"
// design note.
type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	subs      map[uint64]*subscriber
	queueSize int
	log       *logrus.Entry
}

type subscriber struct {
	ch     chan Event
	lagged uint64
}

// New creates a Bus with the default per-subscriber queue depth.
func New(log *logrus.Entry) *Bus {
	return &Bus{
		subs:      make(map[uint64]*subscriber),
		queueSize: DefaultQueueSize,
		log:       log,
	}
}

// Subscribe registers a new consumer and returns its handle.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, b.queueSize)}
	b.subs[id] = sub

	return &Subscription{
		id:  id,
		C:   sub.ch,
		ch:  sub.ch,
		bus: b,
		Lagged: func() uint64 {
			return atomic.LoadUint64(&sub.lagged)
		},
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Publish broadcasts evt to every current subscriber. It never blocks:
// a full subscriber queue drops evt and increments that subscriber's
// lag counter. Publish fills in ID/CreatedAt if unset.
func (b *Bus) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	metrics.EventBusPublished.WithLabelValues(string(evt.Type)).Inc()
	metrics.EventBusSubscribers.Set(float64(len(b.subs)))

	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			atomic.AddUint64(&sub.lagged, 1)
			metrics.EventBusDropped.WithLabelValues(string(evt.Type)).Inc()
			if b.log != nil {
				b.log.WithFields(logrus.Fields{
					"eventType": evt.Type,
					"eventId":   evt.ID,
				}).Warn("eventbus: subscriber queue full, event dropped")
			}
		}
	}
}

// SubscriberCount reports the current number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
