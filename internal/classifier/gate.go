// Package classifier implements the anomaly gate: a versioned feature
// transform, a loadable isolation-forest model artifact, and the
// translation of raw model output onto the gate's canonical risk
// scale.
//
// Canonical convention at the gate boundary: risk 0.0 is safe, risk
// 1.0 is maximally anomalous, and a request is blocked when risk
// exceeds 0.5. Model generations have used inverted raw conventions
// (a label of 1 meaning malicious in one, safe in another); whatever
// the loaded artifact emits is translated here and nowhere else.
package classifier

import (
	"context"
	"log/slog"
)

// Gate wraps the model handle and renders allow/block decisions.
// Scoring is CPU-bound, so concurrent evaluations are capped by a
// semaphore rather than left to fan out unbounded.
type Gate struct {
	handle *Handle
	sem    chan struct{}
	logger *slog.Logger
}

// NewGate creates an anomaly gate evaluating at most workers requests
// concurrently.
func NewGate(handle *Handle, workers int, logger *slog.Logger) *Gate {
	if workers <= 0 {
		workers = 1
	}
	return &Gate{
		handle: handle,
		sem:    make(chan struct{}, workers),
		logger: logger,
	}
}

// Evaluate scores a request and reports whether it should be blocked.
// An unavailable model must never become a denial-of-service vector
// against legitimate traffic, so every failure path — degraded
// handle, cancelled context, panicking model — allows with risk 0.0.
func (g *Gate) Evaluate(ctx context.Context, method, path, body string) (blocked bool, risk float64) {
	model := g.handle.Model()
	if model == nil {
		return false, 0.0
	}

	select {
	case g.sem <- struct{}{}:
		defer func() { <-g.sem }()
	case <-ctx.Done():
		g.logger.Warn("classifier evaluation skipped", "error", ctx.Err())
		return false, 0.0
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("classifier panicked, failing open", "panic", r)
			blocked, risk = false, 0.0
		}
	}()

	fv := Features(method, path, body)
	label := model.Predict(fv)
	risk = canonicalRisk(model.Score(fv))

	return label == -1, risk
}

// canonicalRisk maps the raw decision score (negative = anomalous,
// bounded by [-0.5, 0.5]) onto [0, 1] with 1 most anomalous.
func canonicalRisk(raw float64) float64 {
	risk := 0.5 - raw
	if risk < 0 {
		return 0
	}
	if risk > 1 {
		return 1
	}
	return risk
}
