package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route template, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// RateLimited counts requests rejected by the per-client limiter
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected with 429."},
	)

	// ClassificationCache counts cache lookups by view kind and outcome (hit, miss, error)
	ClassificationCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "classification_cache_total", Help: "Classification cache lookups by view and outcome."},
		[]string{"view", "outcome"},
	)
	// CacheInvalidationErrors counts failed invalidations; the write itself still succeeds
	CacheInvalidationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "classification_cache_invalidation_errors_total", Help: "Failed classification cache invalidations."},
	)
	// ClassificationDuration tracks time spent computing a classification from a snapshot
	ClassificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "classification_compute_seconds", Help: "Classification compute latency in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5}},
		[]string{"view"},
	)
	// ClassificationAnomalies counts anomalies reported in computed classifications by kind
	ClassificationAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "classification_anomalies_total", Help: "Anomalies found while computing classifications."},
		[]string{"kind"},
	)
	// ResultWrites counts stage result mutations by operation
	ResultWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stage_result_writes_total", Help: "Stage result writes by operation."},
		[]string{"op"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(RateLimited)
		Registry.MustRegister(ClassificationCache)
		Registry.MustRegister(CacheInvalidationErrors)
		Registry.MustRegister(ClassificationDuration)
		Registry.MustRegister(ClassificationAnomalies)
		Registry.MustRegister(ResultWrites)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
