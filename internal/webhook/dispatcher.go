// Package webhook implements the two subscriber transports of spec.md
// §6/§9: an HTTP dispatcher that signs each payload with HMAC-SHA256,
// and a NATS relay that republishes the same event taxonomy onto a
// message bus. Both are EventBus subscribers; neither is consulted by
// the registry's match logic.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/eventbus"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/metrics"
)

// Payload is the exact wire shape of spec.md §6's webhook contract.
type Payload struct {
	ID        string      `json:"id"`
	Type      eventbus.Type `json:"type"`
	CreatedAt time.Time   `json:"createdAt"`
	Data      interface{} `json:"data"`
}

// Dispatcher delivers every EventBus event to a single configured HTTP
// endpoint, signed per spec.md §6. Delivery retry/backoff mechanics
// are explicitly out of scope; this dispatcher makes one best-effort
// attempt per event and logs failures.
type Dispatcher struct {
	url    string
	secret string
	client *http.Client
	bus    *eventbus.Bus
	log    *logrus.Entry

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDispatcher constructs an HTTP webhook Dispatcher.
func NewDispatcher(url, secret string, bus *eventbus.Bus, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		bus:    bus,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start subscribes to the bus and delivers events until ctx is
// cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	sub := d.bus.Subscribe()
	defer sub.Unsubscribe()
	defer close(d.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			d.deliver(ctx, evt)
		}
	}
}

// Stop signals the delivery loop to exit and waits for it to finish.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Dispatcher) deliver(ctx context.Context, evt eventbus.Event) {
	payload := Payload{ID: evt.ID, Type: evt.Type, CreatedAt: evt.CreatedAt, Data: evt.Data}
	body, err := json.Marshal(payload)
	if err != nil {
		d.log.WithError(err).Error("webhook: failed to marshal payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		d.log.WithError(err).Error("webhook: failed to build request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set("X-Signature", Sign(d.secret, body, time.Now()))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.WebhookDeliveryStatus.WithLabelValues("error").Inc()
		d.log.WithFields(logrus.Fields{"eventId": evt.ID, "error": err}).Warn("webhook: delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.WebhookDeliveryStatus.WithLabelValues("non_2xx").Inc()
		d.log.WithFields(logrus.Fields{"eventId": evt.ID, "status": resp.StatusCode}).Warn("webhook: non-2xx response")
		return
	}
	metrics.WebhookDeliveryStatus.WithLabelValues("delivered").Inc()
}

// Sign computes the X-Signature header value of spec.md §6:
// "t=<unix>,v1=<hex HMAC-SHA256 over '<t>.<raw-body>'>".
func Sign(secret string, body []byte, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, body)))
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", ts, sig)
}

// Verify checks an X-Signature header against body and secret,
// tolerating clock skew up to maxAge.
func Verify(secret, header string, body []byte, maxAge time.Duration) bool {
	var ts int64
	var sig string
	if _, err := fmt.Sscanf(header, "t=%d,v1=%s", &ts, &sig); err != nil {
		return false
	}
	age := time.Since(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > maxAge {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, body)))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
