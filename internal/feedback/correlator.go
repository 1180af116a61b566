// Package feedback turns operator-reported corrections into
// retraining input. Corrections reference past decisions by
// correlation ID; the correlator joins them against the audit log and
// reconstructs the original requests as known-safe training samples,
// correcting false anomaly blocks without re-labeling raw traffic.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vigil-proxy/vigil/api"
	"github.com/vigil-proxy/vigil/internal/audit"
)

// Correlator matches feedback records against audit history.
type Correlator struct {
	store  Store
	audit  audit.Store
	logger *slog.Logger
}

// NewCorrelator creates a correlator over the given stores.
func NewCorrelator(store Store, auditStore audit.Store, logger *slog.Logger) *Correlator {
	return &Correlator{store: store, audit: auditStore, logger: logger}
}

// Ingest accepts a feedback record. Acceptance only requires storage
// to succeed; whether a matching audit entry exists is checked later,
// at extraction.
func (c *Correlator) Ingest(ctx context.Context, rec *api.FeedbackRecord) error {
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now()
	}
	if err := c.store.Push(ctx, rec); err != nil {
		return fmt.Errorf("ingesting feedback: %w", err)
	}
	c.logger.Info("feedback stored",
		"correlation_id", rec.CorrelationID,
		"label", rec.Label,
	)
	return nil
}

// ExtractRetrainingSamples joins safe-labelled feedback against the
// audit log and reconstructs the matched requests as training
// samples. Feedback with no match — a malformed correlation ID, or an
// entry already trimmed by retention — is skipped but stays stored.
func (c *Correlator) ExtractRetrainingSamples(ctx context.Context) ([]*api.TrainingSample, error) {
	records, err := c.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading feedback: %w", err)
	}

	entries, err := c.audit.Range(ctx, api.QueryFilter{})
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	byCorrelation := make(map[string]*api.AuditEntry, len(entries))
	for _, e := range entries {
		byCorrelation[e.CorrelationID] = e
	}

	var samples []*api.TrainingSample
	for _, rec := range records {
		if rec.Label != api.LabelSafe {
			continue
		}
		if uuid.Validate(rec.CorrelationID) != nil {
			c.logger.Debug("skipping feedback with malformed correlation id",
				"correlation_id", rec.CorrelationID)
			continue
		}
		entry, ok := byCorrelation[rec.CorrelationID]
		if !ok {
			c.logger.Debug("skipping feedback with no matching audit entry",
				"correlation_id", rec.CorrelationID)
			continue
		}
		samples = append(samples, &api.TrainingSample{
			CorrelationID: entry.CorrelationID,
			Method:        entry.Method,
			Path:          entry.Path,
			Body:          entry.Body,
		})
	}

	c.logger.Info("retraining samples extracted",
		"feedback", len(records),
		"samples", len(samples),
	)
	return samples, nil
}
