package feedback

import (
	"context"
	"sync"

	"github.com/vigil-proxy/vigil/api"
)

// MemoryStore is an in-process feedback store for tests and
// Redis-less deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records []*api.FeedbackRecord
}

// NewMemoryStore creates an empty in-memory feedback store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Push(_ context.Context, rec *api.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) All(context.Context) ([]*api.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*api.FeedbackRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
