package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "digest_tracker"

	FetchSubsystem  = "fetch"
	DigestSubsystem = "digest"
)

// Общие HTTP метрики.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// Метрики опроса вышестоящего API.
var (
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: FetchSubsystem,
			Name:      "duration_seconds",
			Help:      "Duration of upstream item fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: FetchSubsystem,
			Name:      "errors_total",
			Help:      "Total number of failed item fetches by error class",
		},
		[]string{"kind", "class"},
	)

	BudgetExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: FetchSubsystem,
			Name:      "budget_exhausted_total",
			Help:      "Total number of fetches skipped due to exhausted request budget",
		},
	)

	RateLimitRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: FetchSubsystem,
			Name:      "rate_limit_remaining",
			Help:      "Last known remaining upstream API rate limit quota",
		},
	)
)

// Метрики дайджестов.
var (
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: DigestSubsystem,
			Name:      "refresh_total",
			Help:      "Total number of digest refresh cycles by result",
		},
		[]string{"digest", "status"},
	)

	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: DigestSubsystem,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of digest refresh cycles in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"digest"},
	)

	DigestEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: DigestSubsystem,
			Name:      "events_count",
			Help:      "Number of events in the latest digest aggregate",
		},
		[]string{"digest"},
	)

	DigestFailedItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: DigestSubsystem,
			Name:      "failed_items_count",
			Help:      "Number of watched items that failed in the latest aggregate",
		},
		[]string{"digest"},
	)
)
