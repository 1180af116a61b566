package feedback

import (
	"context"

	"github.com/vigil-proxy/vigil/api"
)

// Store persists operator feedback. Records are retained even when no
// matching audit entry exists yet; matching happens at extraction
// time, not at ingestion.
type Store interface {
	// Push appends a feedback record.
	Push(ctx context.Context, rec *api.FeedbackRecord) error

	// All returns every retained feedback record.
	All(ctx context.Context) ([]*api.FeedbackRecord, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
