package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// chain watcher metrics
	// ============================================
	WatcherHeadBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payments_watcher_head_block",
			Help: "Chain head block number observed on the most recent tick",
		},
		[]string{"network"},
	)

	WatcherCursorBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payments_watcher_cursor_block",
			Help: "Last block number the watcher has scanned through",
		},
		[]string{"network"},
	)

	WatcherStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payments_watcher_status",
			Help: "Watcher status (1=ACTIVE, 0=HALTED or INACTIVE)",
		},
		[]string{"network"},
	)

	WatcherTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payments_watcher_tick_duration_seconds",
			Help:    "Duration of a single watcher poll tick",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network"},
	)

	WatcherTickErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_watcher_tick_errors_total",
			Help: "Total watcher tick errors by classification",
		},
		[]string{"network", "error_type"},
	)

	// ============================================
	// session / transfer lifecycle metrics
	// ============================================
	SessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_sessions_created_total",
			Help: "Total payment sessions created",
		},
		[]string{"network"},
	)

	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_sessions_completed_total",
			Help: "Total payment sessions completed",
		},
		[]string{"network"},
	)

	SessionsExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_sessions_expired_total",
			Help: "Total payment sessions expired",
		},
		[]string{"network"},
	)

	TransfersDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_transfers_detected_total",
			Help: "Total ERC-20 Transfer logs observed, matched or not",
		},
		[]string{"network", "matched"},
	)

	TransferConfirmationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payments_transfer_confirmation_latency_seconds",
			Help:    "Time from first sighting to confirmation for a transfer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network"},
	)

	// ============================================
	// event bus metrics
	// ============================================
	EventBusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_eventbus_published_total",
			Help: "Total domain events published",
		},
		[]string{"event_type"},
	)

	EventBusDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_eventbus_dropped_total",
			Help: "Total domain events dropped because a subscriber queue was full",
		},
		[]string{"event_type"},
	)

	EventBusSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payments_eventbus_subscribers",
		Help: "Current number of live EventBus subscribers",
	})

	// ============================================
	// webhook / NATS delivery metrics
	// ============================================
	WebhookDeliveryStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_webhook_delivery_total",
			Help: "Total webhook delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	NATSRelayPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_nats_relay_published_total",
			Help: "Total events relayed to NATS",
		},
		[]string{"event_type"},
	)
)
