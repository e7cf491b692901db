package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Export encodes events in the requested format.
func Export(events []*Event, format ExportFormat) ([]byte, string, error) {
	switch format {
	case ExportJSON:
		data, err := exportJSON(events)
		return data, "application/json", err
	case ExportNDJSON:
		data, err := exportNDJSON(events)
		return data, "application/x-ndjson", err
	case ExportCSV:
		data, err := exportCSV(events)
		return data, "text/csv", err
	default:
		return nil, "", fmt.Errorf("unsupported export format: %s", format)
	}
}

func exportJSON(events []*Event) ([]byte, error) {
	return json.MarshalIndent(events, "", "  ")
}

func exportNDJSON(events []*Event) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			return nil, fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func exportCSV(events []*Event) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"ID",
		"Timestamp",
		"EventType",
		"Status",
		"TenantID",
		"UserID",
		"Subject",
		"ResourceType",
		"ResourceID",
		"ResourceName",
		"IPAddress",
		"RequestID",
		"Method",
		"Path",
		"StatusCode",
		"Message",
		"ErrorMessage",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		row := []string{
			strconv.FormatInt(event.ID, 10),
			event.Timestamp.UTC().Format(time.RFC3339),
			string(event.Type),
			string(event.Status),
			formatInt64Ptr(event.TenantID),
			formatInt64Ptr(event.UserID),
			event.Subject,
			string(event.ResourceType),
			event.ResourceID,
			event.ResourceName,
			event.IPAddress,
			event.RequestID,
			event.Method,
			event.Path,
			strconv.Itoa(event.StatusCode),
			event.Message,
			event.ErrorMessage,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

func formatInt64Ptr(val *int64) string {
	if val == nil {
		return ""
	}
	return strconv.FormatInt(*val, 10)
}
