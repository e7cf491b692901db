package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// healthyMockDB returns a sqlmock database primed to pass both the ping
// and the probe query the checker runs.
func healthyMockDB(t *testing.T) (sqlmock.Sqlmock, *HealthChecker) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	db.SetMaxOpenConns(10)
	mock.ExpectPing().WillReturnError(nil)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	return mock, NewHealthChecker(db, nil)
}

func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

// unreachableRedisClient points at a port nothing listens on.
func unreachableRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:9999"})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewHealthChecker(t *testing.T) {
	t.Run("nil dependencies", func(t *testing.T) {
		checker := NewHealthChecker(nil, nil)
		require.NotNil(t, checker)
		assert.Nil(t, checker.db)
		assert.Nil(t, checker.redis)
	})

	t.Run("with database and redis", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		checker := NewHealthChecker(db, testRedisClient(t))
		assert.NotNil(t, checker.db)
		assert.NotNil(t, checker.redis)
	})
}

func TestHealthChecker_Liveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	rr := httptest.NewRecorder()
	checker.Liveness(rr, httptest.NewRequest("GET", "/health/live", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, StatusHealthy, body["status"])
	assert.Contains(t, body, "timestamp")
}

func TestHealthChecker_Readiness(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		checker := NewHealthChecker(nil, nil)

		rr := httptest.NewRecorder()
		checker.Readiness(rr, httptest.NewRequest("GET", "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	})

	t.Run("failed database returns 503", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection failed"))
		checker := NewHealthChecker(db, nil)

		rr := httptest.NewRecorder()
		checker.Readiness(rr, httptest.NewRequest("GET", "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

		var status HealthStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
		assert.Equal(t, StatusUnhealthy, status.Status)
	})

	t.Run("failed redis degrades but stays ready", func(t *testing.T) {
		// Sessions and sync fall back when Redis is down, so readiness
		// reports degraded rather than refusing traffic.
		_, checker := healthyMockDB(t)
		checker.redis = unreachableRedisClient(t)

		rr := httptest.NewRecorder()
		checker.Readiness(rr, httptest.NewRequest("GET", "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rr.Code)

		var status HealthStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
		assert.Equal(t, StatusDegraded, status.Status)
	})
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("no dependencies", func(t *testing.T) {
		status := NewHealthChecker(nil, nil).Check(context.Background())

		assert.Equal(t, StatusHealthy, status.Status)
		assert.Empty(t, status.Dependencies)
		assert.Equal(t, "1.0.0", status.Version)
		assert.False(t, status.Timestamp.IsZero())
	})

	t.Run("healthy database", func(t *testing.T) {
		mock, checker := healthyMockDB(t)

		status := checker.Check(context.Background())

		require.Len(t, status.Dependencies, 1)
		dbStatus, ok := status.Dependencies["database"]
		require.True(t, ok)
		assert.NotEqual(t, StatusUnhealthy, dbStatus.Status, dbStatus.Message)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unhealthy database", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		checker := NewHealthChecker(db, nil)

		status := checker.Check(context.Background())

		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["database"].Status)
		assert.NotEmpty(t, status.Dependencies["database"].Message)
	})

	t.Run("healthy redis", func(t *testing.T) {
		checker := NewHealthChecker(nil, testRedisClient(t))

		status := checker.Check(context.Background())

		assert.Equal(t, StatusHealthy, status.Status)
		redisStatus, ok := status.Dependencies["redis"]
		require.True(t, ok)
		assert.Equal(t, StatusHealthy, redisStatus.Status)
		assert.NotZero(t, redisStatus.Latency)
	})

	t.Run("unhealthy redis degrades overall status", func(t *testing.T) {
		checker := NewHealthChecker(nil, unreachableRedisClient(t))

		status := checker.Check(context.Background())

		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})

	t.Run("both dependencies healthy", func(t *testing.T) {
		_, checker := healthyMockDB(t)
		checker.redis = testRedisClient(t)

		status := checker.Check(context.Background())

		require.Len(t, status.Dependencies, 2)
		for name, dep := range status.Dependencies {
			assert.NotEqual(t, StatusUnhealthy, dep.Status, "%s: %s", name, dep.Message)
		}
	})
}

func TestHealthChecker_checkDatabase(t *testing.T) {
	t.Run("ping and probe query succeed", func(t *testing.T) {
		mock, checker := healthyMockDB(t)

		status := checker.checkDatabase(context.Background())

		assert.NotEqual(t, StatusUnhealthy, status.Status, status.Message)
		assert.NotZero(t, status.Latency)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		checker := NewHealthChecker(db, nil)

		status := checker.checkDatabase(context.Background())

		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, "connection refused", status.Message)
	})

	t.Run("probe query fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(nil)
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("query timeout"))
		checker := NewHealthChecker(db, nil)

		status := checker.checkDatabase(context.Background())

		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Contains(t, status.Message, "query failed")
	})
}

func TestHealthChecker_checkRedis(t *testing.T) {
	t.Run("ping succeeds", func(t *testing.T) {
		checker := NewHealthChecker(nil, testRedisClient(t))

		status := checker.checkRedis(context.Background())

		assert.Equal(t, StatusHealthy, status.Status)
		assert.Empty(t, status.Message)
		assert.NotZero(t, status.Latency)
		assert.False(t, status.Timestamp.IsZero())
	})

	t.Run("ping fails", func(t *testing.T) {
		checker := NewHealthChecker(nil, unreachableRedisClient(t))

		status := checker.checkRedis(context.Background())

		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.NotEmpty(t, status.Message)
	})
}

func TestRegisterHealthRoutes(t *testing.T) {
	t.Run("all routes respond", func(t *testing.T) {
		mux := http.NewServeMux()
		RegisterHealthRoutes(mux, NewHealthChecker(nil, nil))

		for _, path := range []string{"/health", "/health/live", "/health/ready"} {
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
			assert.Equal(t, http.StatusOK, rr.Code, path)
		}
	})

	t.Run("full check reports dependencies", func(t *testing.T) {
		mux := http.NewServeMux()
		_, checker := healthyMockDB(t)
		RegisterHealthRoutes(mux, checker)

		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)

		var status HealthStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
		assert.Contains(t, status.Dependencies, "database")
	})
}
