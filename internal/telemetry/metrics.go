package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Ingestion
var (
	MessagesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Total number of ingested messages by type.",
		},
		[]string{"msg_type"},
	)

	QuarantineTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "ingest",
			Name:      "quarantine_total",
			Help:      "Total number of quarantined messages by reason.",
		},
		[]string{"reason"},
	)

	IngestQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pulse",
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Current depth of the ingestion worker queue.",
		},
	)
)

// Auth cache
var (
	AuthCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "authcache",
			Name:      "hits_total",
			Help:      "Total number of device auth cache hits.",
		},
	)

	AuthCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "authcache",
			Name:      "misses_total",
			Help:      "Total number of device auth cache misses.",
		},
	)

	AuthCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pulse",
			Subsystem: "authcache",
			Name:      "size",
			Help:      "Current number of entries in the device auth cache.",
		},
	)
)

// Batch writer
var (
	WritesOKTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "tswriter",
			Name:      "writes_ok_total",
			Help:      "Total number of successful time-series batch writes.",
		},
	)

	WritesErrTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "tswriter",
			Name:      "writes_err_total",
			Help:      "Total number of time-series batch writes discarded after exhausting retries.",
		},
	)
)

// Evaluator
var (
	LivenessTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "evaluator",
			Name:      "liveness_transitions_total",
			Help:      "Total number of device liveness transitions.",
		},
		[]string{"to"},
	)

	AlertsOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "evaluator",
			Name:      "alerts_opened_total",
			Help:      "Total number of alerts opened by type.",
		},
		[]string{"type"},
	)

	AlertsClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "evaluator",
			Name:      "alerts_closed_total",
			Help:      "Total number of alerts closed by type.",
		},
		[]string{"type"},
	)

	AlertsTouchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "evaluator",
			Name:      "alerts_touched_total",
			Help:      "Total number of open alerts refreshed instead of re-opened (dedup hits).",
		},
	)
)

// Dispatcher
var (
	DeliveryJobsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "dispatch",
			Name:      "jobs_created_total",
			Help:      "Total number of delivery jobs created.",
		},
	)

	RouteThrottledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "dispatch",
			Name:      "throttled_total",
			Help:      "Total number of route matches suppressed by throttle.",
		},
	)
)

// Delivery worker
var (
	DeliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Total number of delivery attempts by integration kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	DeliveryDeadLetterTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "delivery",
			Name:      "dead_letter_total",
			Help:      "Total number of delivery jobs dead-lettered by integration kind.",
		},
		[]string{"kind"},
	)

	DeliveryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pulse",
			Subsystem: "delivery",
			Name:      "latency_seconds",
			Help:      "Delivery attempt latency in seconds by integration kind.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)
)

// All returns every pulse-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		MessagesIngestedTotal,
		QuarantineTotal,
		IngestQueueDepth,
		AuthCacheHitsTotal,
		AuthCacheMissesTotal,
		AuthCacheSize,
		WritesOKTotal,
		WritesErrTotal,
		LivenessTransitionsTotal,
		AlertsOpenedTotal,
		AlertsClosedTotal,
		AlertsTouchedTotal,
		DeliveryJobsCreatedTotal,
		RouteThrottledTotal,
		DeliveryAttemptsTotal,
		DeliveryDeadLetterTotal,
		DeliveryLatency,
	}
}
