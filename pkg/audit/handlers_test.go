package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandlers(t *testing.T) (*mux.Router, *DBLogger) {
	t.Helper()
	store := setupStore(t)
	router := mux.NewRouter()
	NewHandlers(store).RegisterRoutes(router)
	return router, store
}

func seedEvents(t *testing.T, store *DBLogger) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Log(ctx, testEvent(EventAuthLogin, StatusSuccess, 1, 10, base)))
	require.NoError(t, store.Log(ctx, testEvent(EventAuthLoginFailed, StatusFailure, 1, 10, base.Add(time.Hour))))
	require.NoError(t, store.Log(ctx, testEvent(EventMemberAdd, StatusSuccess, 1, 11, base.Add(2*time.Hour))))
	require.NoError(t, store.Log(ctx, testEvent(EventAuthLogin, StatusSuccess, 2, 20, base.Add(3*time.Hour))))
}

func doGet(router *mux.Router, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSearchLogsScopedToTenant(t *testing.T) {
	router, store := setupHandlers(t)
	seedEvents(t, store)

	rec := doGet(router, "/tenants/1/audit/logs")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Total)
	require.Len(t, resp.Events, 3)
	assert.Equal(t, EventMemberAdd, resp.Events[0].Type)
	assert.Equal(t, defaultSearchLimit, resp.Limit)
}

func TestSearchLogsWithFilters(t *testing.T) {
	router, store := setupHandlers(t)
	seedEvents(t, store)

	rec := doGet(router, "/tenants/1/audit/logs?event_types=auth.login,auth.login_failed&status=failure")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, EventAuthLoginFailed, resp.Events[0].Type)
}

func TestSearchLogsPagination(t *testing.T) {
	router, store := setupHandlers(t)
	seedEvents(t, store)

	rec := doGet(router, "/tenants/1/audit/logs?limit=2&offset=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Total)
	assert.Len(t, resp.Events, 1)
	assert.Equal(t, 2, resp.Offset)
}

func TestSearchLogsRejectsBadParams(t *testing.T) {
	router, _ := setupHandlers(t)

	for _, path := range []string{
		"/tenants/1/audit/logs?start_time=yesterday",
		"/tenants/1/audit/logs?end_time=2026-13-99",
		"/tenants/1/audit/logs?user_id=abc",
		"/tenants/1/audit/logs?status=maybe",
		"/tenants/1/audit/logs?limit=0",
		"/tenants/1/audit/logs?offset=-1",
	} {
		rec := doGet(router, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestSearchLogsTimeWindow(t *testing.T) {
	router, store := setupHandlers(t)
	seedEvents(t, store)

	rec := doGet(router, "/tenants/1/audit/logs?start_time=2026-08-01T12:30:00Z&end_time=2026-08-01T13:30:00Z")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, EventAuthLoginFailed, resp.Events[0].Type)
}

func TestGetStats(t *testing.T) {
	router, store := setupHandlers(t)
	seedEvents(t, store)

	rec := doGet(router, "/tenants/1/audit/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.TotalEvents)
	assert.Equal(t, int64(2), stats.UniqueUsers)
	assert.Equal(t, int64(1), stats.FailedLogins)
}

func TestExportLogsCSV(t *testing.T) {
	router, store := setupHandlers(t)
	seedEvents(t, store)

	rec := doGet(router, "/tenants/1/audit/export?format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "auth.login_failed")
}

func TestExportLogsDefaultsToJSON(t *testing.T) {
	router, store := setupHandlers(t)
	seedEvents(t, store)

	rec := doGet(router, "/tenants/1/audit/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var events []*Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 3)
}

func TestExportLogsRejectsUnknownFormat(t *testing.T) {
	router, store := setupHandlers(t)
	seedEvents(t, store)

	rec := doGet(router, "/tenants/1/audit/export?format=xml")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
