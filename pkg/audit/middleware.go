package audit

import (
	"context"
	"net/http"

	"github.com/secopshq/console/pkg/observability"
)

type contextKey string

const loggerContextKey contextKey = "audit_logger"

// WithLogger attaches an audit logger to the context so handlers can
// emit events without plumbing the sink everywhere.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext returns the context's audit logger, or NopLogger.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerContextKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// Record logs an event through the context's audit logger. Sink
// failures never fail the request that produced the event.
func Record(ctx context.Context, event *Event) {
	if err := FromContext(ctx).Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("event_type", string(event.Type)).
			Error("failed to write audit event")
	}
}

// Actor identifies who performed a request.
type Actor struct {
	Subject  string
	UserID   int64
	TenantID int64
}

// ActorFunc resolves the authenticated actor for a request. It
// returns false for unauthenticated requests.
type ActorFunc func(r *http.Request) (Actor, bool)

// Middleware injects the audit sink into request contexts and records
// authorization denials.
type Middleware struct {
	logger Logger
	log    *observability.Logger
	actor  ActorFunc
}

// NewMiddleware creates audit middleware over the given sink. actor
// may be nil when actor attribution is unavailable.
func NewMiddleware(logger Logger, log *observability.Logger, actor ActorFunc) *Middleware {
	return &Middleware{
		logger: logger,
		log:    log.WithField("component", "audit"),
		actor:  actor,
	}
}

// responseWriter captures the response status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Handler wraps next so downstream handlers can emit events via
// Record, and turns 401/403 responses into access-denied events.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(WithLogger(r.Context(), m.logger))

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode != http.StatusUnauthorized && wrapped.statusCode != http.StatusForbidden {
			return
		}

		event := NewEvent(EventAccessDenied, StatusDenied).WithRequest(r)
		event.StatusCode = wrapped.statusCode
		if m.actor != nil {
			if actor, ok := m.actor(r); ok {
				event.WithActor(actor.Subject, actor.UserID, actor.TenantID)
			}
		}
		if err := m.logger.Log(r.Context(), event); err != nil {
			m.log.WithError(err).WithField("path", r.URL.Path).
				Error("failed to record access denial")
		}
	})
}
