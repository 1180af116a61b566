package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryCounter is an in-process CounterStore for tests and for
// running the gateway without a Redis deployment. Counters are only
// as consistent as the single process they live in.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int64
	expires time.Time
}

// NewMemoryCounter creates an in-memory counter store.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*window)}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok || now.After(w.expires) {
		w = &window{expires: now.Add(ttl)}
		c.windows[key] = w
	}
	w.count++
	return w.count, nil
}

func (c *MemoryCounter) Ping(context.Context) error { return nil }
