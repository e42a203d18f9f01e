package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_events_processed_total",
			Help: "Total number of events evaluated by the correlation engine",
		},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_generated_total",
			Help: "Total number of alerts created",
		},
		[]string{"severity"},
	)

	AlertsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_alerts_merged_total",
			Help: "Total number of occurrences merged into existing alerts",
		},
	)

	AlertsThrottled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_throttled_total",
			Help: "Total number of alert creations suppressed by throttling",
		},
		[]string{"rule_id"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_notifications_sent_total",
			Help: "Total number of notification dispatch attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_notifications_dropped_total",
			Help: "Total number of dispatch tasks dropped due to a full queue",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_evaluation_duration_seconds",
			Help:    "Time taken to evaluate one event against the rule set",
			Buckets: prometheus.DefBuckets,
		},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"cache", "operation"},
	)
)
