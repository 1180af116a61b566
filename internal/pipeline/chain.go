// Package pipeline sequences the per-request decision gates: rate
// admission first (cheap, sheds load), anomaly classification second,
// audit last. The audit gate runs for every terminal outcome, so the
// chain runs all gates even after a verdict halts further gating.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// Gate is a single step in the decision pipeline.
type Gate interface {
	// Name returns the gate name for logging.
	Name() string

	// Process inspects and updates the request context. It may set
	// the verdict and halt further gating. Returning an error
	// aborts the chain; gates with a fail-open contract recover
	// their own failures and never return one.
	Process(ctx context.Context, rc *RequestContext) error
}

// Chain executes a fixed sequence of gates in order.
type Chain struct {
	gates  []Gate
	logger *slog.Logger
}

// NewChain creates a gate chain.
func NewChain(logger *slog.Logger, gates ...Gate) *Chain {
	return &Chain{gates: gates, logger: logger}
}

// Process runs all gates in sequence. A halting gate fixes the
// verdict but later gates (the audit write in particular) still run.
func (c *Chain) Process(ctx context.Context, rc *RequestContext) error {
	for _, g := range c.gates {
		if err := g.Process(ctx, rc); err != nil {
			return fmt.Errorf("gate %q: %w", g.Name(), err)
		}
		c.logger.Debug("gate executed",
			"gate", g.Name(),
			"correlation_id", rc.CorrelationID,
			"verdict", rc.Verdict,
			"halted", rc.Halted,
		)
	}
	return nil
}
