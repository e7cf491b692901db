package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Migrations returns the audit schema DDL.
func Migrations() []string {
	return []string{
		`
		CREATE TABLE IF NOT EXISTS audit_logs (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			event_type VARCHAR(100) NOT NULL,
			status VARCHAR(20) NOT NULL,
			tenant_id BIGINT,
			user_id BIGINT,
			subject VARCHAR(255) NOT NULL DEFAULT '',
			resource_type VARCHAR(50) NOT NULL DEFAULT '',
			resource_id VARCHAR(255) NOT NULL DEFAULT '',
			resource_name VARCHAR(255) NOT NULL DEFAULT '',
			ip_address VARCHAR(45) NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			request_id VARCHAR(100) NOT NULL DEFAULT '',
			method VARCHAR(10) NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			changes JSONB
		);

		CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant_id ON audit_logs(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_status ON audit_logs(status);
		`,
	}
}

// RunMigrations applies the audit schema against the given database.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for i, ddl := range Migrations() {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("audit migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// DBLogger persists audit events in the console database.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

const eventColumns = `
	id, timestamp, event_type, status,
	tenant_id, user_id, subject,
	resource_type, resource_id, resource_name,
	ip_address, user_agent, request_id,
	method, path, status_code,
	message, error_message, metadata, changes`

// Log inserts the event and fills in its assigned ID.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON, changesJSON []byte
	var err error

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if event.Changes != nil {
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			tenant_id, user_id, subject,
			resource_type, resource_id, resource_name,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, error_message, metadata, changes
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.Type, event.Status,
		event.TenantID, event.UserID, event.Subject,
		event.ResourceType, event.ResourceID, event.ResourceName,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.StatusCode,
		event.Message, event.ErrorMessage, metadataJSON, changesJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// Close implements Logger. The database connection is owned by the caller.
func (l *DBLogger) Close() error { return nil }

// buildWhere turns a filter into a WHERE clause and its arguments,
// numbering placeholders from $1.
func buildWhere(filter SearchFilter) (string, []interface{}) {
	clause := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filter.StartTime != nil {
		clause += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}
	if filter.EndTime != nil {
		clause += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}
	if filter.TenantID != nil {
		clause += fmt.Sprintf(" AND tenant_id = $%d", argCount)
		args = append(args, *filter.TenantID)
		argCount++
	}
	if filter.UserID != nil {
		clause += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, *filter.UserID)
		argCount++
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			placeholders[i] = fmt.Sprintf("$%d", argCount)
			args = append(args, string(et))
			argCount++
		}
		clause += fmt.Sprintf(" AND event_type IN (%s)", strings.Join(placeholders, ", "))
	}
	if filter.Status != nil {
		clause += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(*filter.Status))
		argCount++
	}
	if filter.ResourceType != "" {
		clause += fmt.Sprintf(" AND resource_type = $%d", argCount)
		args = append(args, string(filter.ResourceType))
		argCount++
	}
	if filter.ResourceID != "" {
		clause += fmt.Sprintf(" AND resource_id = $%d", argCount)
		args = append(args, filter.ResourceID)
		argCount++
	}

	return clause, args
}

// Search returns events matching the filter, newest first.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	where, args := buildWhere(filter)
	query := "SELECT" + eventColumns + " FROM audit_logs" + where + " ORDER BY timestamp DESC, id DESC"
	argCount := len(args) + 1

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		event := &Event{}
		var metadataJSON, changesJSON []byte

		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.Type, &event.Status,
			&event.TenantID, &event.UserID, &event.Subject,
			&event.ResourceType, &event.ResourceID, &event.ResourceName,
			&event.IPAddress, &event.UserAgent, &event.RequestID,
			&event.Method, &event.Path, &event.StatusCode,
			&event.Message, &event.ErrorMessage, &metadataJSON, &changesJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		if len(changesJSON) > 0 {
			event.Changes = &ChangeDetails{}
			if err := json.Unmarshal(changesJSON, event.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return events, nil
}

// Count returns the number of events matching the filter, ignoring
// pagination.
func (l *DBLogger) Count(ctx context.Context, filter SearchFilter) (int64, error) {
	where, args := buildWhere(filter)
	var count int64
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return count, nil
}

// Stats summarizes activity matching the filter's time window and
// tenant scope. Event type, status and resource filters are ignored.
func (l *DBLogger) Stats(ctx context.Context, filter SearchFilter) (*Stats, error) {
	where, args := buildWhere(SearchFilter{
		StartTime: filter.StartTime,
		EndTime:   filter.EndTime,
		TenantID:  filter.TenantID,
	})

	stats := &Stats{
		EventsByType:   make(map[EventType]int64),
		EventsByStatus: make(map[EventStatus]int64),
	}

	row := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT user_id) FROM audit_logs"+where, args...)
	if err := row.Scan(&stats.TotalEvents, &stats.UniqueUsers); err != nil {
		return nil, fmt.Errorf("failed to count audit events: %w", err)
	}

	rows, err := l.db.QueryContext(ctx,
		"SELECT event_type, COUNT(*) FROM audit_logs"+where+" GROUP BY event_type", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count events by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var et EventType
		var count int64
		if err := rows.Scan(&et, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		stats.EventsByType[et] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statusRows, err := l.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM audit_logs"+where+" GROUP BY status", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count events by status: %w", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var st EventStatus
		var count int64
		if err := statusRows.Scan(&st, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.EventsByStatus[st] = count
	}
	if err := statusRows.Err(); err != nil {
		return nil, err
	}

	stats.FailedLogins = stats.EventsByType[EventAuthLoginFailed]
	stats.AccessDenials = stats.EventsByType[EventAccessDenied]

	return stats, nil
}

// Purge deletes events older than the retention window and returns
// how many rows were removed.
func (l *DBLogger) Purge(ctx context.Context, policy RetentionPolicy) (int64, error) {
	if policy.RetentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -policy.RetentionDays)
	res, err := l.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit logs: %w", err)
	}
	return res.RowsAffected()
}
