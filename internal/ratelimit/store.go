package ratelimit

import (
	"context"
	"time"
)

// CounterStore is the shared atomic increment/expire service the
// admission gate counts against.
type CounterStore interface {
	// Incr atomically increments the counter for key and, when the
	// increment is the first of a new window, starts the window's
	// expiry. Returns the count within the active window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
