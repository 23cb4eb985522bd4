package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportFormat selects the encoding of an activity export
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatNDJSON ExportFormat = "ndjson"
	ExportFormatCSV    ExportFormat = "csv"
)

// ContentType returns the MIME type for the format
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatCSV:
		return "text/csv"
	case ExportFormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// Export writes entries to w in the given format
func Export(w io.Writer, entries []*Entry, format ExportFormat) error {
	switch format {
	case ExportFormatCSV:
		return exportCSV(w, entries)
	case ExportFormatNDJSON:
		return exportNDJSON(w, entries)
	case ExportFormatJSON, "":
		return json.NewEncoder(w).Encode(entries)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

func exportNDJSON(w io.Writer, entries []*Entry) error {
	encoder := json.NewEncoder(w)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode entry: %w", err)
		}
	}
	return nil
}

func exportCSV(w io.Writer, entries []*Entry) error {
	writer := csv.NewWriter(w)

	header := []string{"ID", "CreatedAt", "Action", "EntityType", "EntityID", "UserID", "UserEmail", "RequestID", "Details"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, entry := range entries {
		details := ""
		if len(entry.Details) > 0 {
			b, err := json.Marshal(entry.Details)
			if err != nil {
				return fmt.Errorf("failed to encode details: %w", err)
			}
			details = string(b)
		}

		row := []string{
			strconv.FormatInt(entry.ID, 10),
			entry.CreatedAt.UTC().Format(time.RFC3339),
			string(entry.Action),
			string(entry.EntityType),
			entry.EntityID,
			formatInt64Ptr(entry.UserID),
			entry.UserEmail,
			entry.RequestID,
			details,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

func formatInt64Ptr(val *int64) string {
	if val == nil {
		return ""
	}
	return strconv.FormatInt(*val, 10)
}
