package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/secopshq/console/pkg/contextkeys"
)

// Logger is the audit sink interface.
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Close() error
}

// NopLogger discards every event. It stands in when auditing is
// disabled and in tests.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (NopLogger) Close() error                                { return nil }

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Status:    status,
	}
}

// WithActor fills the actor fields.
func (e *Event) WithActor(subject string, userID, tenantID int64) *Event {
	e.UserID = &userID
	e.TenantID = &tenantID
	e.Subject = subject
	return e
}

// WithResource fills the resource fields.
func (e *Event) WithResource(resourceType ResourceType, id, name string) *Event {
	e.ResourceType = resourceType
	e.ResourceID = id
	e.ResourceName = name
	return e
}

// WithRequest fills the request context fields.
func (e *Event) WithRequest(r *http.Request) *Event {
	e.IPAddress = clientIP(r)
	e.UserAgent = r.UserAgent()
	e.Method = r.Method
	e.Path = r.URL.Path
	if id, ok := r.Context().Value(contextkeys.RequestIDKey).(string); ok {
		e.RequestID = id
	}
	return e
}

// WithMessage sets the human-readable summary.
func (e *Event) WithMessage(message string) *Event {
	e.Message = message
	return e
}

// WithMetadata attaches a metadata key. The map is created lazily.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
