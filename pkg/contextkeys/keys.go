// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application are defined here to
// prevent typos and make key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions.
type Key string

const (
	// SessionKey contains auth.SessionClaims.
	// Set by: middleware.SessionAuth
	// Required by: all protected API endpoints
	SessionKey Key = "session"

	// AccessKey contains rbac.Access for the current member.
	// Set by: middleware.AccessMiddleware
	// Required by: rbac enforcement middleware, gate and nav handlers
	AccessKey Key = "access"

	// RequestIDKey contains the request ID string (UUID).
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"
)

// WithSession adds the authenticated session claims to the context.
func WithSession(ctx context.Context, session interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// WithAccess adds the member's access decision state to the context.
func WithAccess(ctx context.Context, access interface{}) context.Context {
	return context.WithValue(ctx, AccessKey, access)
}

// WithRequestID adds the request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
