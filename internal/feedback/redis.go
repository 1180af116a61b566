package feedback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vigil-proxy/vigil/api"
)

// DefaultQueue is the Redis list feedback records are pushed onto.
const DefaultQueue = "feedback_queue"

// RedisStore keeps feedback records as JSON in a Redis list, shared
// with the offline retraining tooling.
type RedisStore struct {
	rdb   *redis.Client
	queue string
}

// NewRedisStore creates a Redis-backed feedback store.
func NewRedisStore(rdb *redis.Client, queue string) *RedisStore {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RedisStore{rdb: rdb, queue: queue}
}

func (s *RedisStore) Push(ctx context.Context, rec *api.FeedbackRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling feedback: %w", err)
	}
	if err := s.rdb.LPush(ctx, s.queue, data).Err(); err != nil {
		return fmt.Errorf("storing feedback: %w", err)
	}
	return nil
}

func (s *RedisStore) All(ctx context.Context) ([]*api.FeedbackRecord, error) {
	raw, err := s.rdb.LRange(ctx, s.queue, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading feedback queue: %w", err)
	}

	records := make([]*api.FeedbackRecord, 0, len(raw))
	for _, item := range raw {
		var rec api.FeedbackRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			// Foreign writers share this queue; skip what we
			// cannot parse.
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
