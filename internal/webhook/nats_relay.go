package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/eventbus"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/metrics"
)

// NATSRelay republishes every EventBus event onto a NATS subject named
// "<subjectPrefix>.<eventType>", an alternative to the HTTP Dispatcher
// for deployments that already run a message bus. Grounded on the
// teacher's internal/clients/nats_client.go connect/reconnect
// bookkeeping, adapted from request/reply RPC calls to a fire-and-
// forget event relay.
type NATSRelay struct {
	conn          *nats.Conn
	subjectPrefix string
	bus           *eventbus.Bus
	log           *logrus.Entry

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewNATSRelay dials url with the reconnect policy configured for the
// relay and returns a relay ready to Start.
func NewNATSRelay(url, subjectPrefix string, reconnectWait time.Duration, maxReconnects int, bus *eventbus.Bus, log *logrus.Entry) (*NATSRelay, error) {
	opts := []nats.Option{
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats: reconnected")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	if subjectPrefix == "" {
		subjectPrefix = "payments.events"
	}

	return &NATSRelay{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		bus:           bus,
		log:           log,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}, nil
}

// Start subscribes to the bus and republishes to NATS until ctx is
// cancelled or Stop is called.
func (r *NATSRelay) Start(ctx context.Context) {
	sub := r.bus.Subscribe()
	defer sub.Unsubscribe()
	defer close(r.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			r.relay(evt)
		}
	}
}

func (r *NATSRelay) relay(evt eventbus.Event) {
	payload := Payload{ID: evt.ID, Type: evt.Type, CreatedAt: evt.CreatedAt, Data: evt.Data}
	body, err := json.Marshal(payload)
	if err != nil {
		r.log.WithError(err).Error("nats: failed to marshal event")
		return
	}

	subject := r.subjectPrefix + "." + string(evt.Type)
	if err := r.conn.Publish(subject, body); err != nil {
		r.log.WithFields(logrus.Fields{"subject": subject, "error": err}).Warn("nats: publish failed")
		return
	}
	metrics.NATSRelayPublished.WithLabelValues(string(evt.Type)).Inc()
}

// Stop signals the relay loop to exit, waits for it, then closes the
// NATS connection.
func (r *NATSRelay) Stop() {
	close(r.stopCh)
	<-r.doneCh
	r.conn.Close()
}
