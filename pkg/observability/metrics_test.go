package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}

		// Verify HTTP metrics are initialized
		if metrics.HTTPRequestsTotal == nil {
			t.Error("HTTPRequestsTotal is nil")
		}
		if metrics.HTTPRequestDuration == nil {
			t.Error("HTTPRequestDuration is nil")
		}
		if metrics.HTTPRequestSize == nil {
			t.Error("HTTPRequestSize is nil")
		}
		if metrics.HTTPResponseSize == nil {
			t.Error("HTTPResponseSize is nil")
		}

		// Verify decision metrics are initialized
		if metrics.DecisionsTotal == nil {
			t.Error("DecisionsTotal is nil")
		}
		if metrics.DecisionDuration == nil {
			t.Error("DecisionDuration is nil")
		}
		if metrics.DecisionBatchSize == nil {
			t.Error("DecisionBatchSize is nil")
		}
		if metrics.AccessDenialsTotal == nil {
			t.Error("AccessDenialsTotal is nil")
		}

		// Verify sync metrics are initialized
		if metrics.SyncRefreshesTotal == nil {
			t.Error("SyncRefreshesTotal is nil")
		}
		if metrics.SyncRefreshDuration == nil {
			t.Error("SyncRefreshDuration is nil")
		}
		if metrics.SyncEventsTotal == nil {
			t.Error("SyncEventsTotal is nil")
		}

		// Verify cache metrics are initialized
		if metrics.CacheHitsTotal == nil {
			t.Error("CacheHitsTotal is nil")
		}
		if metrics.CacheMissesTotal == nil {
			t.Error("CacheMissesTotal is nil")
		}
		if metrics.CacheEvictionsTotal == nil {
			t.Error("CacheEvictionsTotal is nil")
		}

		// Verify auth and audit metrics are initialized
		if metrics.LoginsTotal == nil {
			t.Error("LoginsTotal is nil")
		}
		if metrics.SessionsActive == nil {
			t.Error("SessionsActive is nil")
		}
		if metrics.AuditEventsTotal == nil {
			t.Error("AuditEventsTotal is nil")
		}

		// Verify database metrics are initialized
		if metrics.DBConnectionsActive == nil {
			t.Error("DBConnectionsActive is nil")
		}
		if metrics.DBConnectionsIdle == nil {
			t.Error("DBConnectionsIdle is nil")
		}
		if metrics.DBConnectionsWaitCount == nil {
			t.Error("DBConnectionsWaitCount is nil")
		}
		if metrics.DBConnectionsWaitDuration == nil {
			t.Error("DBConnectionsWaitDuration is nil")
		}

		// Verify redis metrics are initialized
		if metrics.RedisConnectionsActive == nil {
			t.Error("RedisConnectionsActive is nil")
		}
		if metrics.RedisCommandsTotal == nil {
			t.Error("RedisCommandsTotal is nil")
		}
		if metrics.RedisCommandDuration == nil {
			t.Error("RedisCommandDuration is nil")
		}

		// Verify business metrics are initialized
		if metrics.TenantsTotal == nil {
			t.Error("TenantsTotal is nil")
		}
		if metrics.ActiveUsersTotal == nil {
			t.Error("ActiveUsersTotal is nil")
		}
		if metrics.APITokensActive == nil {
			t.Error("APITokensActive is nil")
		}
	})

	t.Run("metrics are registered with registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// Initialize some metrics to make them appear in Gather()
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Add(0)
		metrics.DecisionsTotal.WithLabelValues("alerts:view", "allow").Add(0)
		metrics.SyncRefreshesTotal.WithLabelValues("cron", "success").Add(0)
		metrics.CacheHitsTotal.WithLabelValues("member").Add(0)
		metrics.DBConnectionsActive.Set(0)
		metrics.RedisConnectionsActive.Set(0)
		metrics.TenantsTotal.Set(0)

		// Gather metrics from registry to verify registration
		families, err := registry.Gather()
		if err != nil {
			t.Fatalf("Failed to gather metrics: %v", err)
		}

		if len(families) == 0 {
			t.Error("No metrics registered in registry")
		}

		// Verify some key metrics are present
		metricNames := make(map[string]bool)
		for _, family := range families {
			metricNames[family.GetName()] = true
		}

		expectedMetrics := []string{
			"console_http_requests_total",
			"console_access_decisions_total",
			"console_sync_refreshes_total",
			"console_cache_hits_total",
			"console_db_connections_active",
			"console_redis_connections_active",
			"console_tenants_total",
		}

		for _, name := range expectedMetrics {
			if !metricNames[name] {
				t.Errorf("Expected metric %s not found in registry", name)
			}
		}
	})

	t.Run("panics on duplicate registration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		// Attempting to register again should panic
		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic on duplicate registration, but didn't panic")
			}
		}()

		NewMetrics(registry)
	})
}

func TestMetrics_HTTPMetrics(t *testing.T) {
	t.Run("increment HTTP request counter", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/test", "200").Inc()

		count := testutil.CollectAndCount(metrics.HTTPRequestsTotal)
		if count != 1 {
			t.Errorf("Expected 1 metric, got %d", count)
		}

		// Verify the value
		expected := `
# HELP console_http_requests_total Total number of HTTP requests
# TYPE console_http_requests_total counter
console_http_requests_total{method="GET",path="/api/test",status="200"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("observe HTTP request duration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.HTTPRequestDuration.WithLabelValues("POST", "/api/create").Observe(0.5)
		metrics.HTTPRequestDuration.WithLabelValues("POST", "/api/create").Observe(1.5)

		count := testutil.CollectAndCount(metrics.HTTPRequestDuration)
		if count != 1 {
			t.Errorf("Expected 1 metric family, got %d", count)
		}
	})

	t.Run("observe HTTP response size", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.HTTPResponseSize.WithLabelValues("GET", "/api/data").Observe(4096)

		count := testutil.CollectAndCount(metrics.HTTPResponseSize)
		if count != 1 {
			t.Errorf("Expected 1 metric family, got %d", count)
		}
	})
}

func TestMetrics_DecisionMetrics(t *testing.T) {
	t.Run("record decisions", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.DecisionsTotal.WithLabelValues("alerts:view", "allow").Inc()
		metrics.DecisionsTotal.WithLabelValues("tenants:manage", "deny").Inc()

		expected := `
# HELP console_access_decisions_total Total number of access decisions evaluated
# TYPE console_access_decisions_total counter
console_access_decisions_total{outcome="allow",permission="alerts:view"} 1
console_access_decisions_total{outcome="deny",permission="tenants:manage"} 1
`
		if err := testutil.CollectAndCompare(metrics.DecisionsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("observe decision duration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.DecisionDuration.WithLabelValues("live").Observe(0.0002)
		metrics.DecisionDuration.WithLabelValues("session").Observe(0.0001)

		count := testutil.CollectAndCount(metrics.DecisionDuration)
		if count != 2 {
			t.Errorf("Expected 2 metric families, got %d", count)
		}
	})

	t.Run("observe batch size", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.DecisionBatchSize.Observe(3)
		metrics.DecisionBatchSize.Observe(12)

		count := testutil.CollectAndCount(metrics.DecisionBatchSize)
		if count != 1 {
			t.Errorf("Expected 1 metric family, got %d", count)
		}
	})

	t.Run("record access denials", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.AccessDenialsTotal.WithLabelValues("tenants:manage", "role_too_low").Inc()

		expected := `
# HELP console_access_denials_total Total number of denied access decisions
# TYPE console_access_denials_total counter
console_access_denials_total{permission="tenants:manage",reason="role_too_low"} 1
`
		if err := testutil.CollectAndCompare(metrics.AccessDenialsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})
}

func TestMetrics_SyncMetrics(t *testing.T) {
	t.Run("record sync refreshes", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.SyncRefreshesTotal.WithLabelValues("cron", "success").Inc()
		metrics.SyncRefreshesTotal.WithLabelValues("pubsub", "success").Inc()

		expected := `
# HELP console_sync_refreshes_total Total number of permission cache refreshes
# TYPE console_sync_refreshes_total counter
console_sync_refreshes_total{status="success",trigger="cron"} 1
console_sync_refreshes_total{status="success",trigger="pubsub"} 1
`
		if err := testutil.CollectAndCompare(metrics.SyncRefreshesTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("observe sync refresh duration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.SyncRefreshDuration.WithLabelValues("cron").Observe(0.25)

		count := testutil.CollectAndCount(metrics.SyncRefreshDuration)
		if count != 1 {
			t.Errorf("Expected 1 metric family, got %d", count)
		}
	})

	t.Run("record sync events", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.SyncEventsTotal.WithLabelValues("rbac:changes").Inc()

		expected := `
# HELP console_sync_events_total Total number of permission change events received
# TYPE console_sync_events_total counter
console_sync_events_total{channel="rbac:changes"} 1
`
		if err := testutil.CollectAndCompare(metrics.SyncEventsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})
}

func TestMetrics_CacheMetrics(t *testing.T) {
	t.Run("record cache hits", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.CacheHitsTotal.WithLabelValues("member").Inc()

		expected := `
# HELP console_cache_hits_total Total number of cache hits
# TYPE console_cache_hits_total counter
console_cache_hits_total{cache_type="member"} 1
`
		if err := testutil.CollectAndCompare(metrics.CacheHitsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("record cache misses", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.CacheMissesTotal.WithLabelValues("member").Inc()

		expected := `
# HELP console_cache_misses_total Total number of cache misses
# TYPE console_cache_misses_total counter
console_cache_misses_total{cache_type="member"} 1
`
		if err := testutil.CollectAndCompare(metrics.CacheMissesTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("record cache evictions", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.CacheEvictionsTotal.WithLabelValues("member", "size_limit").Inc()

		expected := `
# HELP console_cache_evictions_total Total number of cache evictions
# TYPE console_cache_evictions_total counter
console_cache_evictions_total{cache_type="member",reason="size_limit"} 1
`
		if err := testutil.CollectAndCompare(metrics.CacheEvictionsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})
}

func TestMetrics_AuthMetrics(t *testing.T) {
	t.Run("record logins", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.LoginsTotal.WithLabelValues("okta", "success").Inc()
		metrics.LoginsTotal.WithLabelValues("okta", "failure").Inc()

		expected := `
# HELP console_logins_total Total number of login attempts
# TYPE console_logins_total counter
console_logins_total{provider="okta",status="failure"} 1
console_logins_total{provider="okta",status="success"} 1
`
		if err := testutil.CollectAndCompare(metrics.LoginsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("record audit events", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.AuditEventsTotal.WithLabelValues("rbac.role_change", "success").Inc()

		expected := `
# HELP console_audit_events_total Total number of audit events recorded
# TYPE console_audit_events_total counter
console_audit_events_total{event_type="rbac.role_change",status="success"} 1
`
		if err := testutil.CollectAndCompare(metrics.AuditEventsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})
}

func TestMetrics_DatabaseMetrics(t *testing.T) {
	t.Run("set database connections", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.DBConnectionsActive.Set(10)
		metrics.DBConnectionsIdle.Set(5)
		metrics.DBConnectionsWaitCount.Set(2)
		metrics.DBConnectionsWaitDuration.Set(0.05)

		// Verify metrics can be collected
		count := testutil.CollectAndCount(metrics.DBConnectionsActive)
		if count != 1 {
			t.Errorf("Expected 1 metric, got %d", count)
		}

		// Test increment and decrement
		metrics.DBConnectionsActive.Inc()
		metrics.DBConnectionsIdle.Dec()

		expected := `
# HELP console_db_connections_active Number of active database connections
# TYPE console_db_connections_active gauge
console_db_connections_active 11
`
		if err := testutil.CollectAndCompare(metrics.DBConnectionsActive, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})
}

func TestMetrics_RedisMetrics(t *testing.T) {
	t.Run("set redis connections", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.RedisConnectionsActive.Set(8)

		expected := `
# HELP console_redis_connections_active Number of active Redis connections
# TYPE console_redis_connections_active gauge
console_redis_connections_active 8
`
		if err := testutil.CollectAndCompare(metrics.RedisConnectionsActive, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("record redis commands", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.RedisCommandsTotal.WithLabelValues("GET", "success").Inc()
		metrics.RedisCommandsTotal.WithLabelValues("SET", "success").Inc()

		expected := `
# HELP console_redis_commands_total Total number of Redis commands
# TYPE console_redis_commands_total counter
console_redis_commands_total{command="GET",status="success"} 1
console_redis_commands_total{command="SET",status="success"} 1
`
		if err := testutil.CollectAndCompare(metrics.RedisCommandsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("observe redis command duration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.RedisCommandDuration.WithLabelValues("GET").Observe(0.001)

		count := testutil.CollectAndCount(metrics.RedisCommandDuration)
		if count != 1 {
			t.Errorf("Expected 1 metric family, got %d", count)
		}
	})
}

func TestMetrics_BusinessMetrics(t *testing.T) {
	t.Run("set business metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.TenantsTotal.Set(100)
		metrics.ActiveUsersTotal.Set(25)
		metrics.APITokensActive.Set(10)

		expected := `
# HELP console_tenants_total Total number of tenants
# TYPE console_tenants_total gauge
console_tenants_total 100
`
		if err := testutil.CollectAndCompare(metrics.TenantsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}

		expected = `
# HELP console_api_tokens_active Number of active API tokens
# TYPE console_api_tokens_active gauge
console_api_tokens_active 10
`
		if err := testutil.CollectAndCompare(metrics.APITokensActive, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{
			ResponseWriter: recorder,
			statusCode:     http.StatusOK,
		}

		rw.WriteHeader(http.StatusCreated)

		if rw.statusCode != http.StatusCreated {
			t.Errorf("Expected status code %d, got %d", http.StatusCreated, rw.statusCode)
		}

		if recorder.Code != http.StatusCreated {
			t.Errorf("Expected recorder status code %d, got %d", http.StatusCreated, recorder.Code)
		}
	})

	t.Run("captures bytes written", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{
			ResponseWriter: recorder,
			statusCode:     http.StatusOK,
		}

		data := []byte("Hello, World!")
		n, err := rw.Write(data)

		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}

		if n != len(data) {
			t.Errorf("Expected %d bytes written, got %d", len(data), n)
		}

		if rw.bytesWritten != len(data) {
			t.Errorf("Expected %d bytes tracked, got %d", len(data), rw.bytesWritten)
		}
	})

	t.Run("accumulates bytes across multiple writes", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{
			ResponseWriter: recorder,
			statusCode:     http.StatusOK,
		}

		rw.Write([]byte("Hello, "))
		rw.Write([]byte("World!"))

		expected := len("Hello, ") + len("World!")
		if rw.bytesWritten != expected {
			t.Errorf("Expected %d bytes written, got %d", expected, rw.bytesWritten)
		}
	})

	t.Run("defaults to 200 status code", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{
			ResponseWriter: recorder,
			statusCode:     http.StatusOK,
		}

		// Write without calling WriteHeader
		rw.Write([]byte("test"))

		if rw.statusCode != http.StatusOK {
			t.Errorf("Expected default status code %d, got %d", http.StatusOK, rw.statusCode)
		}
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Run("records HTTP metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		middleware := HTTPMetricsMiddleware(metrics)
		wrappedHandler := middleware(handler)

		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()

		wrappedHandler.ServeHTTP(rec, req)

		// Verify counter was incremented
		expected := `
# HELP console_http_requests_total Total number of HTTP requests
# TYPE console_http_requests_total counter
console_http_requests_total{method="GET",path="/test",status="200"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected counter value: %v", err)
		}

		// Verify duration was recorded
		count := testutil.CollectAndCount(metrics.HTTPRequestDuration)
		if count != 1 {
			t.Errorf("Expected 1 duration metric, got %d", count)
		}

		// Verify response size was recorded
		count = testutil.CollectAndCount(metrics.HTTPResponseSize)
		if count != 1 {
			t.Errorf("Expected 1 response size metric, got %d", count)
		}
	})

	t.Run("records different status codes", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		testCases := []struct {
			statusCode int
			path       string
		}{
			{http.StatusOK, "/ok"},
			{http.StatusNotFound, "/notfound"},
			{http.StatusInternalServerError, "/error"},
		}

		middleware := HTTPMetricsMiddleware(metrics)

		for _, tc := range testCases {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			})

			wrappedHandler := middleware(handler)
			req := httptest.NewRequest("GET", tc.path, nil)
			rec := httptest.NewRecorder()

			wrappedHandler.ServeHTTP(rec, req)
		}

		// Verify all status codes were recorded
		count := testutil.CollectAndCount(metrics.HTTPRequestsTotal)
		if count != 3 {
			t.Errorf("Expected 3 metrics, got %d", count)
		}
	})

	t.Run("records request size with content length", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		middleware := HTTPMetricsMiddleware(metrics)
		wrappedHandler := middleware(handler)

		body := strings.NewReader("test body content")
		req := httptest.NewRequest("POST", "/upload", body)
		req.ContentLength = int64(body.Len())
		rec := httptest.NewRecorder()

		wrappedHandler.ServeHTTP(rec, req)

		// Verify request size was recorded
		count := testutil.CollectAndCount(metrics.HTTPRequestSize)
		if count != 1 {
			t.Errorf("Expected 1 request size metric, got %d", count)
		}
	})

	t.Run("skips request size when content length is 0", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		middleware := HTTPMetricsMiddleware(metrics)
		wrappedHandler := middleware(handler)

		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()

		wrappedHandler.ServeHTTP(rec, req)

		// Request size should not be recorded for GET without body
		count := testutil.CollectAndCount(metrics.HTTPRequestSize)
		if count != 0 {
			t.Errorf("Expected 0 request size metrics, got %d", count)
		}
	})

	t.Run("measures request duration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(10 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		})

		middleware := HTTPMetricsMiddleware(metrics)
		wrappedHandler := middleware(handler)

		req := httptest.NewRequest("GET", "/slow", nil)
		rec := httptest.NewRecorder()

		start := time.Now()
		wrappedHandler.ServeHTTP(rec, req)
		elapsed := time.Since(start)

		if elapsed < 10*time.Millisecond {
			t.Error("Expected handler to take at least 10ms")
		}

		// Verify duration was recorded
		count := testutil.CollectAndCount(metrics.HTTPRequestDuration)
		if count != 1 {
			t.Errorf("Expected 1 duration metric, got %d", count)
		}
	})

	t.Run("handles multiple requests", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		middleware := HTTPMetricsMiddleware(metrics)
		wrappedHandler := middleware(handler)

		for i := 0; i < 5; i++ {
			req := httptest.NewRequest("GET", "/test", nil)
			rec := httptest.NewRecorder()
			wrappedHandler.ServeHTTP(rec, req)
		}

		expected := `
# HELP console_http_requests_total Total number of HTTP requests
# TYPE console_http_requests_total counter
console_http_requests_total{method="GET",path="/test",status="200"} 5
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected counter value: %v", err)
		}
	})
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	t.Run("registers metrics endpoint", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// Set some metric values
		metrics.TenantsTotal.Set(42)
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api", "200").Inc()

		mux := http.NewServeMux()
		RegisterMetricsEndpoint(mux, registry)

		req := httptest.NewRequest("GET", "/metrics", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status code %d, got %d", http.StatusOK, rec.Code)
		}

		body := rec.Body.String()

		// Verify metrics are exposed
		if !strings.Contains(body, "console_tenants_total") {
			t.Error("Expected console_tenants_total in metrics output")
		}

		if !strings.Contains(body, "console_tenants_total 42") {
			t.Error("Expected console_tenants_total value to be 42")
		}

		if !strings.Contains(body, "console_http_requests_total") {
			t.Error("Expected console_http_requests_total in metrics output")
		}
	})

	t.Run("metrics endpoint returns prometheus format", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		mux := http.NewServeMux()
		RegisterMetricsEndpoint(mux, registry)

		req := httptest.NewRequest("GET", "/metrics", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		contentType := rec.Header().Get("Content-Type")
		if !strings.Contains(contentType, "text/plain") {
			t.Errorf("Expected Content-Type to contain text/plain, got %s", contentType)
		}

		body := rec.Body.String()

		// Verify Prometheus format markers
		if !strings.Contains(body, "# HELP") {
			t.Error("Expected # HELP lines in output")
		}

		if !strings.Contains(body, "# TYPE") {
			t.Error("Expected # TYPE lines in output")
		}
	})

	t.Run("metrics endpoint only responds to /metrics path", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		mux := http.NewServeMux()
		RegisterMetricsEndpoint(mux, registry)

		req := httptest.NewRequest("GET", "/other", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected status code %d for non-metrics path, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestMetrics_Integration(t *testing.T) {
	t.Run("full workflow with middleware and exposition", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// Create an application handler
		appHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Hello, World!"))
		})

		// Wrap with metrics middleware
		middleware := HTTPMetricsMiddleware(metrics)
		wrappedHandler := middleware(appHandler)

		// Create mux and register both app and metrics endpoints
		mux := http.NewServeMux()
		mux.Handle("/api/hello", wrappedHandler)
		RegisterMetricsEndpoint(mux, registry)

		// Make a request to the app
		req := httptest.NewRequest("GET", "/api/hello", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status code %d, got %d", http.StatusOK, rec.Code)
		}

		// Fetch metrics
		metricsReq := httptest.NewRequest("GET", "/metrics", nil)
		metricsRec := httptest.NewRecorder()
		mux.ServeHTTP(metricsRec, metricsReq)

		if metricsRec.Code != http.StatusOK {
			t.Errorf("Expected metrics status code %d, got %d", http.StatusOK, metricsRec.Code)
		}

		body := metricsRec.Body.String()

		// Verify the app request was recorded in metrics
		if !strings.Contains(body, "console_http_requests_total") {
			t.Error("Expected console_http_requests_total in metrics")
		}

		if !strings.Contains(body, `method="GET"`) {
			t.Error("Expected GET method label in metrics")
		}

		if !strings.Contains(body, `path="/api/hello"`) {
			t.Error("Expected /api/hello path label in metrics")
		}

		if !strings.Contains(body, `status="200"`) {
			t.Error("Expected 200 status label in metrics")
		}
	})

	t.Run("records multiple label combinations", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// Record decisions across permissions and outcomes
		metrics.DecisionsTotal.WithLabelValues("alerts:view", "allow").Add(10)
		metrics.DecisionsTotal.WithLabelValues("alerts:manage", "allow").Add(5)
		metrics.DecisionsTotal.WithLabelValues("alerts:view", "deny").Add(20)
		metrics.DecisionsTotal.WithLabelValues("tenants:manage", "deny").Add(2)

		mux := http.NewServeMux()
		RegisterMetricsEndpoint(mux, registry)

		req := httptest.NewRequest("GET", "/metrics", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		body := rec.Body.String()

		// Verify all label combinations are present
		expectedPatterns := []string{
			`console_access_decisions_total{outcome="allow",permission="alerts:view"} 10`,
			`console_access_decisions_total{outcome="allow",permission="alerts:manage"} 5`,
			`console_access_decisions_total{outcome="deny",permission="alerts:view"} 20`,
			`console_access_decisions_total{outcome="deny",permission="tenants:manage"} 2`,
		}

		for _, pattern := range expectedPatterns {
			if !strings.Contains(body, pattern) {
				t.Errorf("Expected pattern %q not found in metrics output", pattern)
			}
		}
	})
}

func TestMetrics_EdgeCases(t *testing.T) {
	t.Run("large metric values", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		largeValue := float64(1000000000) // 1 billion
		metrics.TenantsTotal.Set(largeValue)

		expected := `
# HELP console_tenants_total Total number of tenants
# TYPE console_tenants_total gauge
console_tenants_total 1e+09
`
		if err := testutil.CollectAndCompare(metrics.TenantsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("zero values", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.ActiveUsersTotal.Set(0)

		expected := `
# HELP console_active_users_total Total number of active users
# TYPE console_active_users_total gauge
console_active_users_total 0
`
		if err := testutil.CollectAndCompare(metrics.ActiveUsersTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("negative gauge values", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// While unusual, gauges can technically be negative
		metrics.DBConnectionsActive.Set(10)
		metrics.DBConnectionsActive.Sub(15)

		expected := `
# HELP console_db_connections_active Number of active database connections
# TYPE console_db_connections_active gauge
console_db_connections_active -5
`
		if err := testutil.CollectAndCompare(metrics.DBConnectionsActive, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("empty response body", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{
			ResponseWriter: recorder,
			statusCode:     http.StatusNoContent,
		}

		rw.WriteHeader(http.StatusNoContent)

		if rw.bytesWritten != 0 {
			t.Errorf("Expected 0 bytes written, got %d", rw.bytesWritten)
		}
	})

	t.Run("special characters in labels", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// Labels with special characters
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/users/{id}", "200").Inc()

		count := testutil.CollectAndCount(metrics.HTTPRequestsTotal)
		if count != 1 {
			t.Errorf("Expected 1 metric, got %d", count)
		}
	})
}

func BenchmarkHTTPMetricsMiddleware(b *testing.B) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	middleware := HTTPMetricsMiddleware(metrics)
	wrappedHandler := middleware(handler)

	req := httptest.NewRequest("GET", "/test", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(rec, req)
	}
}

func BenchmarkMetricsCollection(b *testing.B) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Inc()
		metrics.HTTPRequestDuration.WithLabelValues("GET", "/test").Observe(0.1)
		metrics.DecisionsTotal.WithLabelValues("alerts:view", "allow").Inc()
		metrics.CacheHitsTotal.WithLabelValues("member").Inc()
	}
}

func ExampleMetrics() {
	// Create a new registry and metrics
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	// Record some metrics
	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/users", "200").Inc()
	metrics.HTTPRequestDuration.WithLabelValues("GET", "/api/users").Observe(0.123)
	metrics.DecisionsTotal.WithLabelValues("alerts:view", "allow").Inc()
	metrics.CacheHitsTotal.WithLabelValues("member").Inc()

	// Set gauge values
	metrics.TenantsTotal.Set(100)
	metrics.ActiveUsersTotal.Set(42)

	// Create HTTP server with metrics
	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	// The metrics are now available at /metrics endpoint
}

func ExampleHTTPMetricsMiddleware() {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	// Create your application handler
	appHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "Hello, World!")
	})

	// Wrap with metrics middleware
	middleware := HTTPMetricsMiddleware(metrics)
	instrumentedHandler := middleware(appHandler)

	// Use the instrumented handler
	mux := http.NewServeMux()
	mux.Handle("/", instrumentedHandler)
	RegisterMetricsEndpoint(mux, registry)

	// All requests will be automatically instrumented
}
