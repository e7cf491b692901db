package audit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/secopshq/console/pkg/httputil"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
	maxExportEvents    = 10000
)

// Handlers serves the tenant-scoped audit log API.
type Handlers struct {
	store *DBLogger
}

// NewHandlers creates the audit handlers.
func NewHandlers(store *DBLogger) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers the audit routes. The router is expected
// to already enforce authentication and the audit read permission.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants/{tenant_id}/audit/logs", h.searchLogs).Methods(http.MethodGet)
	router.HandleFunc("/tenants/{tenant_id}/audit/stats", h.getStats).Methods(http.MethodGet)
	router.HandleFunc("/tenants/{tenant_id}/audit/export", h.exportLogs).Methods(http.MethodGet)
}

// parseFilter builds a SearchFilter from query parameters. The tenant
// always comes from the path so callers cannot read across tenants.
func parseFilter(r *http.Request, tenantID int64) (SearchFilter, error) {
	q := r.URL.Query()
	filter := SearchFilter{TenantID: &tenantID}

	if v := q.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid start_time: %s", v)
		}
		filter.StartTime = &t
	}
	if v := q.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid end_time: %s", v)
		}
		filter.EndTime = &t
	}
	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid user_id: %s", v)
		}
		filter.UserID = &id
	}
	if v := q.Get("event_types"); v != "" {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				filter.EventTypes = append(filter.EventTypes, EventType(part))
			}
		}
	}
	if v := q.Get("status"); v != "" {
		status := EventStatus(v)
		switch status {
		case StatusSuccess, StatusFailure, StatusDenied:
			filter.Status = &status
		default:
			return filter, fmt.Errorf("invalid status: %s", v)
		}
	}
	filter.ResourceType = ResourceType(q.Get("resource_type"))
	filter.ResourceID = q.Get("resource_id")

	filter.Limit = defaultSearchLimit
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return filter, fmt.Errorf("invalid limit: %s", v)
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, fmt.Errorf("invalid offset: %s", v)
		}
		filter.Offset = offset
	}

	return filter, nil
}

// searchResponse is the paginated search payload.
type searchResponse struct {
	Events []*Event `json:"events"`
	Total  int64    `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

func (h *Handlers) searchLogs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	filter, err := parseFilter(r, tenantID)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	total, err := h.store.Count(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, searchResponse{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	filter, err := parseFilter(r, tenantID)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	stats, err := h.store.Stats(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}

func (h *Handlers) exportLogs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	filter, err := parseFilter(r, tenantID)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter.Limit = maxExportEvents
	filter.Offset = 0

	format := ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = ExportJSON
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	data, contentType, err := Export(events, format)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	filename := fmt.Sprintf("audit-logs-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
