package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream provider calls by pipeline stage (geocode, detail). Watch for:
	// error vs success ratio per stage.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per stage. Watch for: p95 > 2s (upstream degradation).
	UpstreamCallDuration *prometheus.HistogramVec

	// Total weather lookups. rate() for QPS.
	WeatherQueriesTotal prometheus.Counter

	// Cache hits by backend. Hit rate = hits/(hits+weatherApiCallsTotal).
	CacheHitsTotal *prometheus.CounterVec

	// Cache backend failures by operation. Reads degrade to a fetch, writes
	// are skipped; neither surfaces to callers, so this is the only signal.
	CacheErrorsTotal *prometheus.CounterVec

	// Concurrent misses for the same key. Watch for: wasteful duplicate
	// upstream fetches; consider enabling coalescing if this grows.
	CacheStampedeDetectedTotal prometheus.Counter

	// Concurrency observed when a stampede is detected.
	CacheStampedeConcurrency prometheus.Histogram

	// Alert rules evaluated per sweep.
	AlertsEvaluatedTotal prometheus.Counter

	// Alert rules that crossed their threshold.
	AlertsTriggeredTotal *prometheus.CounterVec

	// Failures reading rules or stamping triggers. Logged, never surfaced.
	AlertStoreErrorsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of upstream weather API calls by stage",
		},
		[]string{"stage", "status"},
	)
	UpstreamCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Upstream weather API latency in seconds by stage",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"stage"},
	)
	WeatherQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Total number of weather lookups",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of fresh cache hits",
		},
		[]string{"backend"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Total number of cache backend failures by operation",
		},
		[]string{"operation"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Times multiple requests missed the same key concurrently",
		},
	)
	CacheStampedeConcurrency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Concurrent misses for the same key when a stampede is detected",
			Buckets: []float64{2, 3, 5, 10, 25, 50},
		},
	)
	AlertsEvaluatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alertsEvaluatedTotal",
			Help: "Total number of alert rules evaluated",
		},
	)
	AlertsTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertsTriggeredTotal",
			Help: "Total number of alert rules that crossed their threshold",
		},
		[]string{"metric"},
	)
	AlertStoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertStoreErrorsTotal",
			Help: "Total number of alert store failures by operation",
		},
		[]string{"operation"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamCallDuration,
		WeatherQueriesTotal,
		CacheHitsTotal, CacheErrorsTotal,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency,
		AlertsEvaluatedTotal, AlertsTriggeredTotal, AlertStoreErrorsTotal,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns the HTTP handler serving the /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
