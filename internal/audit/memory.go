package audit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/vigil-proxy/vigil/api"
)

// MemoryStore is an in-process audit store for tests and Redis-less
// deployments. Entries live in append order behind a single mutex, so
// readers never observe a partial entry.
type MemoryStore struct {
	mu      sync.Mutex
	entries []*api.AuditEntry
	nextID  int64

	notify *notifier
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, notify: newNotifier()}
}

func (s *MemoryStore) Append(_ context.Context, entry *api.AuditEntry) error {
	s.mu.Lock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.ID = strconv.FormatInt(s.nextID, 10)
	s.nextID++
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	s.notify.notify(entry)
	return nil
}

func (s *MemoryStore) Range(_ context.Context, filter api.QueryFilter) ([]*api.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sinceID := int64(0)
	if filter.SinceID != "" {
		sinceID, _ = strconv.ParseInt(filter.SinceID, 10, 64)
	}

	var results []*api.AuditEntry
	for _, e := range s.entries {
		if sinceID > 0 {
			id, _ := strconv.ParseInt(e.ID, 10, 64)
			if id <= sinceID {
				continue
			}
		}
		if !matchesFilter(e, filter) {
			continue
		}
		results = append(results, e)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

func (s *MemoryStore) Trim(_ context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

func (s *MemoryStore) Stats(_ context.Context) (*api.AuditStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return statsOf(s.entries), nil
}

func (s *MemoryStore) Subscribe(context.Context) (<-chan *api.AuditEntry, func()) {
	return s.notify.subscribe()
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
