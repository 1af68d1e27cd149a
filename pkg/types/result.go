package types

import (
	"time"
)

// ResultEntry is a single admitted address as exported to the output file
type ResultEntry struct {
	// Required fields
	ScanID    string `json:"scan_id"`
	Address   string `json:"address"`
	LatencyMs int64  `json:"latency_ms"`
	Scheme    string `json:"scheme"`
	Port      int    `json:"port"`
	Timestamp string `json:"timestamp"` // RFC3339 format date-time

	// Optional fields
	ServerName string `json:"server_name,omitempty"`
	Round      int    `json:"round,omitempty"` // deeper-search round, 0 for the first scan
}

// Validate checks if the entry has all required fields populated
func (e *ResultEntry) Validate() error {
	if e.ScanID == "" {
		return &ValidationError{Field: "scan_id", Message: "scan_id is required"}
	}
	if e.Address == "" {
		return &ValidationError{Field: "address", Message: "address is required"}
	}
	if e.LatencyMs <= 0 {
		return &ValidationError{Field: "latency_ms", Message: "latency_ms must be positive"}
	}
	if e.Scheme != "http" && e.Scheme != "https" {
		return &ValidationError{Field: "scheme", Message: "scheme must be http or https"}
	}
	if e.Port <= 0 || e.Port > 65535 {
		return &ValidationError{Field: "port", Message: "port out of range"}
	}
	if e.Timestamp == "" {
		return &ValidationError{Field: "timestamp", Message: "timestamp is required"}
	}
	return nil
}

// SetTimestamp sets the timestamp from a time.Time value
func (e *ResultEntry) SetTimestamp(t time.Time) {
	e.Timestamp = t.Format(time.RFC3339)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
