package pipeline

import (
	"time"

	"github.com/vigil-proxy/vigil/api"
)

// RequestContext carries one request's state through the gate chain.
// It is owned by the orchestrator for the request's lifetime and
// never shared between requests.
type RequestContext struct {
	// CorrelationID is generated once per request and propagated
	// to the audit entry and the response headers.
	CorrelationID string

	// ClientKey identifies the traffic source (the rate-limit key).
	ClientKey string

	Method string
	Path   string

	// Headers is a point-in-time snapshot of the request headers.
	Headers map[string]string

	// Body is the request payload truncated to the configured cap.
	Body string

	ReceivedAt time.Time

	// Verdict is set by the gates; it starts as allowed and is
	// overwritten by the first gate that blocks.
	Verdict api.Verdict

	// RiskScore is the anomaly gate's canonical score. It stays
	// 0.0 for requests blocked by rate before classification.
	RiskScore float64

	// Halted indicates a verdict is final; later gates must not
	// change it. The audit gate still runs.
	Halted bool
}

// NewRequestContext creates the per-request pipeline state.
func NewRequestContext(correlationID, clientKey, method, path string, headers map[string]string, body string) *RequestContext {
	return &RequestContext{
		CorrelationID: correlationID,
		ClientKey:     clientKey,
		Method:        method,
		Path:          path,
		Headers:       headers,
		Body:          body,
		ReceivedAt:    time.Now(),
		Verdict:       api.VerdictAllowed,
	}
}

// ToAuditEntry converts the request context into an audit entry.
func (rc *RequestContext) ToAuditEntry() *api.AuditEntry {
	return &api.AuditEntry{
		CorrelationID: rc.CorrelationID,
		Timestamp:     rc.ReceivedAt,
		ClientKey:     rc.ClientKey,
		Method:        rc.Method,
		Path:          rc.Path,
		Headers:       rc.Headers,
		Body:          rc.Body,
		Verdict:       rc.Verdict,
		RiskScore:     rc.RiskScore,
	}
}
