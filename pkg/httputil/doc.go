// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error responses,
// parameter parsing, and common HTTP middleware patterns.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, payload)
//	httputil.WriteCreated(w, resource)
//
// Error responses:
//
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteUnauthorized(w, "Session expired")
//	httputil.WriteForbidden(w, "Insufficient permissions")
//
// # Request Parsing
//
// JSON parsing:
//
//	var req createCustomRoleRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Path parameters:
//
//	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
//
// Query parameters:
//
//	limit, err := httputil.ParseQueryInt(r, "limit", 20)
//	offset, err := httputil.ParseQueryInt(r, "offset", 0)
//	recursive, err := httputil.ParseQueryBool(r, "recursive", false)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.TimeoutMiddleware(30*time.Second),
//		httputil.MaxBytesMiddleware(1*1024*1024),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Authentication and authorization middleware
package httputil
