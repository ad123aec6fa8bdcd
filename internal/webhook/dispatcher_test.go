package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/eventbus"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestSignAndVerify_RoundTrips(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	at := time.Now()

	header := Sign("shh", body, at)
	require.True(t, Verify("shh", header, body, time.Minute))
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	header := Sign("shh", body, time.Now())
	require.False(t, Verify("different", header, body, time.Minute))
}

func TestVerify_RejectsTamperedBody(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	header := Sign("shh", body, time.Now())
	require.False(t, Verify("shh", header, []byte(`{"hello":"mallory"}`), time.Minute))
}

func TestVerify_RejectsStaleTimestamp(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	header := Sign("shh", body, time.Now().Add(-time.Hour))
	require.False(t, Verify("shh", header, body, time.Minute))
}

func TestVerify_RejectsMalformedHeader(t *testing.T) {
	require.False(t, Verify("shh", "not-a-valid-header", []byte("x"), time.Minute))
}

func TestDispatcher_DeliversSignedPayloadAndStops(t *testing.T) {
	var mu sync.Mutex
	var received Payload
	var sigHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		sigHeader = r.Header.Get("X-Signature")
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := eventbus.New(testLog())
	d := NewDispatcher(srv.URL, "shh", bus, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	// Start subscribes from inside its goroutine; an event published
	// before that subscription exists is never delivered to it.
	require.Eventually(t, func() bool {
		return bus.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	bus.Publish(eventbus.Event{Type: eventbus.SessionCreated, Data: eventbus.SessionCreatedData{}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received.ID != ""
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, eventbus.SessionCreated, received.Type)
	require.NotEmpty(t, sigHeader)
	mu.Unlock()

	cancel()
	<-done
}

func TestDispatcher_StopWaitsForLoopExit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := eventbus.New(testLog())
	d := NewDispatcher(srv.URL, "", bus, testLog())

	go d.Start(context.Background())
	d.Stop()
}
