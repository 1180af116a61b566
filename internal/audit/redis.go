package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vigil-proxy/vigil/api"
)

// DefaultStream is the Redis stream audit entries are appended to.
const DefaultStream = "traffic_log"

// RedisStore is an audit store backed by a Redis stream. Stream IDs
// are assigned by Redis and are monotonically increasing, which gives
// consumers a natural high-water mark; trimming uses MINID against
// the millisecond prefix of those IDs.
type RedisStore struct {
	rdb    *redis.Client
	stream string

	notify *notifier
}

// NewRedisStore creates a Redis Streams audit store.
func NewRedisStore(rdb *redis.Client, stream string) *RedisStore {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStore{rdb: rdb, stream: stream, notify: newNotifier()}
}

func (s *RedisStore) Append(ctx context.Context, entry *api.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	headers, err := json.Marshal(entry.Headers)
	if err != nil {
		return fmt.Errorf("marshaling header snapshot: %w", err)
	}

	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"correlation_id": entry.CorrelationID,
			"timestamp":      entry.Timestamp.Format(time.RFC3339Nano),
			"client_key":     entry.ClientKey,
			"method":         entry.Method,
			"path":           entry.Path,
			"headers":        string(headers),
			"body":           entry.Body,
			"verdict":        string(entry.Verdict),
			"risk_score":     strconv.FormatFloat(entry.RiskScore, 'f', -1, 64),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}

	entry.ID = id
	s.notify.notify(entry)
	return nil
}

func (s *RedisStore) Range(ctx context.Context, filter api.QueryFilter) ([]*api.AuditEntry, error) {
	start := "-"
	if filter.SinceID != "" {
		// Exclusive range: resume strictly after the high-water mark.
		start = "(" + filter.SinceID
	}

	msgs, err := s.rdb.XRange(ctx, s.stream, start, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("reading audit stream: %w", err)
	}

	var results []*api.AuditEntry
	for _, msg := range msgs {
		entry := decodeEntry(msg)
		if !matchesFilter(entry, filter) {
			continue
		}
		results = append(results, entry)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

func (s *RedisStore) Trim(ctx context.Context, olderThan time.Duration) error {
	minID := strconv.FormatInt(time.Now().Add(-olderThan).UnixMilli(), 10)
	if err := s.rdb.XTrimMinIDApprox(ctx, s.stream, minID, 0).Err(); err != nil {
		return fmt.Errorf("trimming audit stream: %w", err)
	}
	return nil
}

func (s *RedisStore) Stats(ctx context.Context) (*api.AuditStats, error) {
	entries, err := s.Range(ctx, api.QueryFilter{})
	if err != nil {
		return nil, err
	}
	return statsOf(entries), nil
}

func (s *RedisStore) Subscribe(context.Context) (<-chan *api.AuditEntry, func()) {
	return s.notify.subscribe()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return nil }

func decodeEntry(msg redis.XMessage) *api.AuditEntry {
	entry := &api.AuditEntry{
		ID:            msg.ID,
		CorrelationID: str(msg.Values, "correlation_id"),
		ClientKey:     str(msg.Values, "client_key"),
		Method:        str(msg.Values, "method"),
		Path:          str(msg.Values, "path"),
		Body:          str(msg.Values, "body"),
		Verdict:       api.Verdict(str(msg.Values, "verdict")),
	}
	if ts, err := time.Parse(time.RFC3339Nano, str(msg.Values, "timestamp")); err == nil {
		entry.Timestamp = ts
	}
	if score, err := strconv.ParseFloat(str(msg.Values, "risk_score"), 64); err == nil {
		entry.RiskScore = score
	}
	if raw := str(msg.Values, "headers"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &entry.Headers)
	}
	return entry
}

func str(values map[string]any, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}
