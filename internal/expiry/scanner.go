// Package expiry implements the ExpiryScanner of spec.md §4.4: a
// periodic sweep that moves overdue PENDING sessions to EXPIRED.
// Grounded on the teacher's periodic-task tickers (the same pattern
// unified_polling_service.go uses for its own poll loop, here driven
// by a fixed interval rather than a per-chain adaptive one).
package expiry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Registry is the subset of *registry.Registry the scanner needs.
type Registry interface {
	ExpireDue(now time.Time) int
}

// Scanner periodically calls Registry.ExpireDue. Running it more often
// only reduces detection latency; a missed tick is caught up by the
// next one (spec.md §4.4).
type Scanner struct {
	registry Registry
	interval time.Duration
	log      *logrus.Entry

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Scanner. interval is clamped to (0, 30s] by the
// caller via config.Config.ExpiryScanIntervalSeconds.
func New(registry Registry, interval time.Duration, log *logrus.Entry) *Scanner {
	return &Scanner{
		registry: registry,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
func (s *Scanner) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			n := s.registry.ExpireDue(time.Now().UTC())
			if n > 0 {
				s.log.WithField("count", n).Info("expiry: swept sessions")
			}
		}
	}
}

// Stop requests the sweep loop to exit and waits for it to finish.
func (s *Scanner) Stop() {
	close(s.stopCh)
	<-s.doneCh
}
