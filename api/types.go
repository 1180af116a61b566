package api

import "time"

// Verdict is the decision pipeline's outcome for a single request.
type Verdict string

const (
	VerdictAllowed        Verdict = "allowed"
	VerdictBlockedRate    Verdict = "blocked_rate"
	VerdictBlockedAnomaly Verdict = "blocked_anomaly"
)

// Feedback labels an operator can attach to a past decision.
const (
	LabelSafe      = "safe"
	LabelMalicious = "malicious"
)

// AuditEntry is the immutable record appended once per request,
// regardless of verdict. ID is assigned by the audit store at append
// time and is monotonically increasing, so consumers can resume from
// a high-water mark.
type AuditEntry struct {
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlation_id"`
	Timestamp     time.Time         `json:"timestamp"`
	ClientKey     string            `json:"client_key"`
	Method        string            `json:"method"`
	Path          string            `json:"path"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          string            `json:"body,omitempty"`
	Verdict       Verdict           `json:"verdict"`
	RiskScore     float64           `json:"risk_score"`
}

// FeedbackRecord is an operator-submitted correction for a past
// decision, referencing the audit entry by correlation ID. A record
// is accepted even when no matching audit entry exists yet.
type FeedbackRecord struct {
	CorrelationID string    `json:"correlation_id"`
	Label         string    `json:"label"`
	Comment       string    `json:"comment,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// TrainingSample is a known-safe request reconstructed from a matched
// feedback/audit pair, fed back into the offline training pipeline.
type TrainingSample struct {
	CorrelationID string `json:"correlation_id"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Body          string `json:"body,omitempty"`
}

// FeedbackRequest is the body of the feedback submission endpoint.
type FeedbackRequest struct {
	CorrelationID string `json:"correlation_id"`
	Label         string `json:"label"`
	Comment       string `json:"comment,omitempty"`
}
