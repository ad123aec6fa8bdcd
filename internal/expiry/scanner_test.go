package expiry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	calls int32
	n     int
}

func (f *fakeRegistry) ExpireDue(now time.Time) int {
	atomic.AddInt32(&f.calls, 1)
	return f.n
}

func testLog() *logrus.Entry {
	l := logrus.New()
	return logrus.NewEntry(l)
}

func TestScanner_TicksAndCallsExpireDue(t *testing.T) {
	reg := &fakeRegistry{n: 2}
	s := New(reg, 10*time.Millisecond, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&reg.calls) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestScanner_StopWaitsForLoopExit(t *testing.T) {
	reg := &fakeRegistry{}
	s := New(reg, 10*time.Millisecond, testLog())

	go s.Start(context.Background())

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&reg.calls) >= 1
	}, time.Second, 5*time.Millisecond)

	s.Stop()
}
