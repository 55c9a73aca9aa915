package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream API metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polytrak_api_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"api", "endpoint", "status"}, // data/profile, positions, success/error
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polytrak_api_request_duration_seconds",
			Help:    "Duration of upstream API requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"api", "endpoint"},
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polytrak_fetch_retries_total",
			Help: "Upstream request retries by reason",
		},
		[]string{"endpoint", "reason"}, // rate_limit, network
	)

	FetchedItems = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polytrak_fetched_items",
			Help:    "Unique records returned by one paginated fetch",
			Buckets: []float64{0, 10, 50, 100, 500, 1000, 2000, 5000, 8000},
		},
		[]string{"endpoint"},
	)

	// Stage metrics
	StageInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polytrak_stage_invocations_total",
			Help: "Total number of stage invocations",
		},
		[]string{"stage", "outcome"}, // cached, computed, error, timeout, cancelled
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polytrak_stage_duration_seconds",
			Help:    "Duration of stage computations (cache misses only)",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"stage"},
	)

	// Cache metrics
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polytrak_cache_operations_total",
			Help: "Stage cache operations",
		},
		[]string{"operation", "result"}, // get/put, hit/miss/stale/error/success
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polytrak_cache_operation_duration_seconds",
			Help:    "Duration of stage cache store operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	ReliabilityScores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polytrak_reliability_scores_total",
			Help: "Reliability scores assigned to analysis results",
		},
		[]string{"score"},
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polytrak_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"}, // healthy/unhealthy
	)
)

// RecordAPIRequest records API request metrics
func RecordAPIRequest(api, endpoint string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	APIRequests.WithLabelValues(api, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(api, endpoint).Observe(duration.Seconds())
}

// RecordRetry counts one retried upstream request
func RecordRetry(endpoint, reason string) {
	FetchRetries.WithLabelValues(endpoint, reason).Inc()
}

// RecordFetch records how many unique records a paginated fetch produced
func RecordFetch(endpoint string, items int) {
	FetchedItems.WithLabelValues(endpoint).Observe(float64(items))
}

// RecordStage records one stage invocation. Duration is only observed for
// computed results so cache hits do not skew the histogram.
func RecordStage(stage, outcome string, duration time.Duration) {
	StageInvocations.WithLabelValues(stage, outcome).Inc()
	if outcome == "computed" {
		StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	}
}

// RecordCacheOperation records a stage cache operation
func RecordCacheOperation(operation, result string, duration time.Duration) {
	CacheOperations.WithLabelValues(operation, result).Inc()
	CacheOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReliability counts an assigned reliability score
func RecordReliability(score string) {
	ReliabilityScores.WithLabelValues(score).Inc()
}

// RecordHealthCheck records health check status
func RecordHealthCheck(healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(status).Inc()
}
