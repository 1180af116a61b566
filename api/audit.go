package api

import "time"

// QueryFilter defines criteria for reading back audit entries.
type QueryFilter struct {
	// SinceID resumes a read after the given entry ID (exclusive).
	SinceID       string    `json:"since_id,omitempty"`
	Since         time.Time `json:"since,omitempty"`
	Until         time.Time `json:"until,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	ClientKey     string    `json:"client_key,omitempty"`
	Verdict       Verdict   `json:"verdict,omitempty"`
	Limit         int       `json:"limit,omitempty"`
}

// AuditStats summarizes the retained audit window.
type AuditStats struct {
	TotalRequests       int            `json:"total_requests"`
	AllowedCount        int            `json:"allowed_count"`
	BlockedRateCount    int            `json:"blocked_rate_count"`
	BlockedAnomalyCount int            `json:"blocked_anomaly_count"`
	ByMethod            map[string]int `json:"by_method"`
	ByClient            map[string]int `json:"by_client"`
}
