// Package metrics provides Prometheus metrics for the query engine.
package metrics

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the application.
// The recording helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// Upstream provider requests
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec
	RateLimitWaitSeconds   *prometheus.CounterVec

	// Fan-out and replies
	QueryDispatchTotal *prometheus.CounterVec
	ReplyDuration      *prometheus.HistogramVec

	// Location cache
	CacheLookupsTotal  *prometheus.CounterVec
	CacheExpiredFiles  prometheus.Counter
	CacheWriteFailures prometheus.Counter

	// HTTP API
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	logger *slog.Logger
}

// New creates and registers all metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	backendRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transitquery_backend_requests_total",
			Help: "Total number of requests sent to upstream providers",
		},
		[]string{"backend", "kind", "outcome"},
	)

	backendRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transitquery_backend_request_duration_seconds",
			Help:    "Upstream provider request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "kind"},
	)

	rateLimitWaitSeconds := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transitquery_backend_rate_limit_wait_seconds_total",
			Help: "Total time spent waiting for the per-backend rate limiter",
		},
		[]string{"backend"},
	)

	queryDispatchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transitquery_query_dispatch_total",
			Help: "Per-backend dispatch decisions taken while fanning out a query",
		},
		[]string{"kind", "decision"},
	)

	replyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transitquery_reply_duration_seconds",
			Help:    "Time from query dispatch until the reply finished",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "error"},
	)

	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transitquery_cache_lookups_total",
			Help: "Location cache lookups by result",
		},
		[]string{"result"},
	)

	cacheExpiredFiles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transitquery_cache_expired_files_total",
		Help: "Number of cache files removed by expiry",
	})

	cacheWriteFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transitquery_cache_write_failures_total",
		Help: "Number of cache entries that could not be written",
	})

	apiRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transitquery_api_requests_total",
			Help: "HTTP API requests by route, status and query outcome",
		},
		[]string{"route", "status", "outcome"},
	)

	// up to the longest query timeout
	apiRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transitquery_api_request_duration_seconds",
			Help:    "HTTP API request latency by route",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"route"},
	)

	registry.MustRegister(
		backendRequestsTotal,
		backendRequestDuration,
		rateLimitWaitSeconds,
		queryDispatchTotal,
		replyDuration,
		cacheLookupsTotal,
		cacheExpiredFiles,
		cacheWriteFailures,
		apiRequestsTotal,
		apiRequestDuration,
	)

	return &Metrics{
		Registry:               registry,
		BackendRequestsTotal:   backendRequestsTotal,
		BackendRequestDuration: backendRequestDuration,
		RateLimitWaitSeconds:   rateLimitWaitSeconds,
		QueryDispatchTotal:     queryDispatchTotal,
		ReplyDuration:          replyDuration,
		CacheLookupsTotal:      cacheLookupsTotal,
		CacheExpiredFiles:      cacheExpiredFiles,
		CacheWriteFailures:     cacheWriteFailures,
		APIRequestsTotal:       apiRequestsTotal,
		APIRequestDuration:     apiRequestDuration,
		logger:                 logger,
	}
}

// ObserveBackendRequest records one upstream request.
func (m *Metrics) ObserveBackendRequest(backend, kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(backend, kind, outcome).Inc()
	m.BackendRequestDuration.WithLabelValues(backend, kind).Observe(d.Seconds())
}

// ObserveRateLimitWait records time spent blocked on a backend's rate limiter.
func (m *Metrics) ObserveRateLimitWait(backend string, d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.RateLimitWaitSeconds.WithLabelValues(backend).Add(d.Seconds())
}

// IncDispatch counts a fan-out decision such as "accepted" or "skipped_geo".
func (m *Metrics) IncDispatch(kind, decision string) {
	if m == nil {
		return
	}
	m.QueryDispatchTotal.WithLabelValues(kind, decision).Inc()
}

// ObserveReply records how long a reply took to finish.
func (m *Metrics) ObserveReply(kind, errorCode string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReplyDuration.WithLabelValues(kind, errorCode).Observe(d.Seconds())
}

// IncCacheLookup counts a cache lookup result: miss, positive or negative.
func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// AddCacheExpired counts removed cache files.
func (m *Metrics) AddCacheExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheExpiredFiles.Add(float64(n))
}

// IncCacheWriteFailure counts a failed cache write.
func (m *Metrics) IncCacheWriteFailure() {
	if m == nil {
		return
	}
	m.CacheWriteFailures.Inc()
	if m.logger != nil {
		m.logger.Debug("cache write failure recorded")
	}
}

// ObserveAPIRequest records one HTTP API request. Outcome is how a query
// answered ("results", "empty", an error code, "timeout", "invalid") or
// "none" for routes that run no query.
func (m *Metrics) ObserveAPIRequest(route string, status int, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(status), outcome).Inc()
	m.APIRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
