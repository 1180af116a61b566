// Package audit implements the append-only, time-bounded decision
// log. Every request produces exactly one entry regardless of
// verdict, so the log is a complete record of all traffic, not just
// blocks.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/vigil-proxy/vigil/api"
)

// Store is the interface for audit entry persistence and retrieval.
type Store interface {
	// Append adds an entry and assigns it a monotonically
	// increasing ID.
	Append(ctx context.Context, entry *api.AuditEntry) error

	// Range retrieves entries matching the filter in append order.
	Range(ctx context.Context, filter api.QueryFilter) ([]*api.AuditEntry, error)

	// Trim removes entries older than the given age. Best effort:
	// it may retain slightly more than the window but never drops
	// entries younger than it.
	Trim(ctx context.Context, olderThan time.Duration) error

	// Stats returns aggregate statistics over retained entries.
	Stats(ctx context.Context) (*api.AuditStats, error)

	// Subscribe returns a channel receiving new entries in real
	// time. The returned function cancels the subscription.
	Subscribe(ctx context.Context) (<-chan *api.AuditEntry, func())

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close shuts down the store.
	Close() error
}

// notifier fans appended entries out to live subscribers. Slow
// subscribers drop entries rather than stalling appends.
type notifier struct {
	mu   sync.RWMutex
	subs map[int]chan *api.AuditEntry
	next int
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan *api.AuditEntry)}
}

func (n *notifier) subscribe() (<-chan *api.AuditEntry, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan *api.AuditEntry, 100)
	id := n.next
	n.next++
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (n *notifier) notify(entry *api.AuditEntry) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

func statsOf(entries []*api.AuditEntry) *api.AuditStats {
	stats := &api.AuditStats{
		ByMethod: make(map[string]int),
		ByClient: make(map[string]int),
	}
	for _, e := range entries {
		stats.TotalRequests++
		switch e.Verdict {
		case api.VerdictAllowed:
			stats.AllowedCount++
		case api.VerdictBlockedRate:
			stats.BlockedRateCount++
		case api.VerdictBlockedAnomaly:
			stats.BlockedAnomalyCount++
		}
		if e.Method != "" {
			stats.ByMethod[e.Method]++
		}
		if e.ClientKey != "" {
			stats.ByClient[e.ClientKey]++
		}
	}
	return stats
}

func matchesFilter(e *api.AuditEntry, f api.QueryFilter) bool {
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if f.ClientKey != "" && e.ClientKey != f.ClientKey {
		return false
	}
	if f.Verdict != "" && e.Verdict != f.Verdict {
		return false
	}
	return true
}
