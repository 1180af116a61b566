package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vigil-proxy/vigil/api"
	"github.com/vigil-proxy/vigil/internal/audit"
	"github.com/vigil-proxy/vigil/internal/classifier"
	"github.com/vigil-proxy/vigil/internal/ratelimit"
)

// AdmissionGate applies the fixed-window rate limit. It runs first:
// counting is cheap, so excessive load is shed before paying the
// classification cost.
type AdmissionGate struct {
	limiter *ratelimit.Limiter
}

// NewAdmissionGate creates the rate-limit gate.
func NewAdmissionGate(limiter *ratelimit.Limiter) *AdmissionGate {
	return &AdmissionGate{limiter: limiter}
}

func (g *AdmissionGate) Name() string { return "admission" }

func (g *AdmissionGate) Process(ctx context.Context, rc *RequestContext) error {
	if rc.Halted {
		return nil
	}
	if !g.limiter.Check(ctx, rc.ClientKey) {
		rc.Verdict = api.VerdictBlockedRate
		rc.RiskScore = 0.0
		rc.Halted = true
	}
	return nil
}

// AnomalyGate scores the request against the loaded classifier.
type AnomalyGate struct {
	gate *classifier.Gate
}

// NewAnomalyGate creates the classifier gate.
func NewAnomalyGate(gate *classifier.Gate) *AnomalyGate {
	return &AnomalyGate{gate: gate}
}

func (g *AnomalyGate) Name() string { return "anomaly" }

func (g *AnomalyGate) Process(ctx context.Context, rc *RequestContext) error {
	if rc.Halted {
		return nil
	}
	blocked, risk := g.gate.Evaluate(ctx, rc.Method, rc.Path, rc.Body)
	rc.RiskScore = risk
	if blocked {
		rc.Verdict = api.VerdictBlockedAnomaly
		rc.Halted = true
	}
	return nil
}

// AuditGate writes the audit entry. It always runs, regardless of
// verdict, and never fails the request: a write failure is logged and
// counted, nothing more.
type AuditGate struct {
	store     audit.Store
	retention time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	failures atomic.Int64
}

// NewAuditGate creates the audit gate. Retention trimming piggybacks
// on each append rather than running on its own schedule.
func NewAuditGate(store audit.Store, retention, timeout time.Duration, logger *slog.Logger) *AuditGate {
	return &AuditGate{
		store:     store,
		retention: retention,
		timeout:   timeout,
		logger:    logger,
	}
}

func (g *AuditGate) Name() string { return "audit" }

func (g *AuditGate) Process(ctx context.Context, rc *RequestContext) error {
	// The trail must be complete even when the client disconnects
	// mid-pipeline, so the write survives request cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	entry := rc.ToAuditEntry()
	if err := g.store.Append(ctx, entry); err != nil {
		g.failures.Add(1)
		g.logger.Warn("audit write failed",
			"correlation_id", rc.CorrelationID,
			"error", err,
		)
		return nil
	}

	if err := g.store.Trim(ctx, g.retention); err != nil {
		g.logger.Warn("audit trim failed", "error", err)
	}
	return nil
}

// Failures returns the number of swallowed audit write failures.
func (g *AuditGate) Failures() int64 {
	return g.failures.Load()
}
