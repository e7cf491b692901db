package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Access decision metrics
	DecisionsTotal     *prometheus.CounterVec
	DecisionDuration   *prometheus.HistogramVec
	DecisionBatchSize  prometheus.Histogram
	AccessDenialsTotal *prometheus.CounterVec

	// Permission sync metrics
	SyncRefreshesTotal  *prometheus.CounterVec
	SyncRefreshDuration *prometheus.HistogramVec
	SyncEventsTotal     *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheEvictionsTotal *prometheus.CounterVec

	// Auth metrics
	LoginsTotal    *prometheus.CounterVec
	SessionsActive prometheus.Gauge

	// Audit metrics
	AuditEventsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Redis metrics
	RedisConnectionsActive prometheus.Gauge
	RedisCommandsTotal     *prometheus.CounterVec
	RedisCommandDuration   *prometheus.HistogramVec

	// Business metrics
	TenantsTotal     prometheus.Gauge
	ActiveUsersTotal prometheus.Gauge
	APITokensActive  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Access decision metrics
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_access_decisions_total",
				Help: "Total number of access decisions evaluated",
			},
			[]string{"permission", "outcome"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_access_decision_duration_seconds",
				Help:    "Access decision evaluation duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
			},
			[]string{"source"},
		),
		DecisionBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "console_access_decision_batch_size",
				Help:    "Number of checks per batch decision request",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),
		AccessDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_access_denials_total",
				Help: "Total number of denied access decisions",
			},
			[]string{"permission", "reason"},
		),

		// Permission sync metrics
		SyncRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_sync_refreshes_total",
				Help: "Total number of permission cache refreshes",
			},
			[]string{"trigger", "status"},
		),
		SyncRefreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_sync_refresh_duration_seconds",
				Help:    "Permission cache refresh duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"trigger"},
		),
		SyncEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_sync_events_total",
				Help: "Total number of permission change events received",
			},
			[]string{"channel"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
		CacheEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_cache_evictions_total",
				Help: "Total number of cache evictions",
			},
			[]string{"cache_type", "reason"},
		),

		// Auth metrics
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_logins_total",
				Help: "Total number of login attempts",
			},
			[]string{"provider", "status"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_sessions_active",
				Help: "Number of active sessions",
			},
		),

		// Audit metrics
		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_audit_events_total",
				Help: "Total number of audit events recorded",
			},
			[]string{"event_type", "status"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		// Redis metrics
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_redis_connections_active",
				Help: "Number of active Redis connections",
			},
		),
		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_redis_commands_total",
				Help: "Total number of Redis commands",
			},
			[]string{"command", "status"},
		),
		RedisCommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_redis_command_duration_seconds",
				Help:    "Redis command duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"command"},
		),

		// Business metrics
		TenantsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_tenants_total",
				Help: "Total number of tenants",
			},
		),
		ActiveUsersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_active_users_total",
				Help: "Total number of active users",
			},
		),
		APITokensActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_api_tokens_active",
				Help: "Number of active API tokens",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.DecisionsTotal,
		m.DecisionDuration,
		m.DecisionBatchSize,
		m.AccessDenialsTotal,
		m.SyncRefreshesTotal,
		m.SyncRefreshDuration,
		m.SyncEventsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheEvictionsTotal,
		m.LoginsTotal,
		m.SessionsActive,
		m.AuditEventsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.RedisConnectionsActive,
		m.RedisCommandsTotal,
		m.RedisCommandDuration,
		m.TenantsTotal,
		m.ActiveUsersTotal,
		m.APITokensActive,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Record request size
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
