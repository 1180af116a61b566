// Package ratelimit implements the fixed-window admission gate.
//
// The gate counts requests per client key in non-overlapping windows
// against a shared counter store. When the store is unreachable the
// gate fails open: rate-limiting correctness is sacrificed for
// availability of the protected backend.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

const keyPrefix = "rate_limit:"

// Limiter is the fixed-window admission gate.
type Limiter struct {
	store   CounterStore
	limit   int64
	window  time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// NewLimiter creates an admission gate allowing up to limit requests
// per client key per window. Store calls are bounded by timeout.
func NewLimiter(store CounterStore, limit int, window, timeout time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:   store,
		limit:   int64(limit),
		window:  window,
		timeout: timeout,
		logger:  logger,
	}
}

// Check reports whether a request from clientKey is admitted. A count
// exactly equal to the limit is still allowed; limit+1 is the first
// denial. Store errors and timeouts allow the request.
func (l *Limiter) Check(ctx context.Context, clientKey string) bool {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, err := l.store.Incr(ctx, keyPrefix+clientKey, l.window)
	if err != nil {
		l.logger.Warn("counter store unavailable, failing open",
			"client", clientKey,
			"error", err,
		)
		return true
	}

	if count > l.limit {
		l.logger.Warn("rate limit exceeded",
			"client", clientKey,
			"count", count,
			"limit", l.limit,
		)
		return false
	}
	return true
}

// Window returns the configured window length, used for Retry-After.
func (l *Limiter) Window() time.Duration { return l.window }
