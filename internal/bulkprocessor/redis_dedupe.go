package bulkprocessor

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "accessfabric:bulkprocessor:event_id:"

// RedisDedupeChecker is a DedupeChecker backed by Redis, grounded on the
// teacher's RedisTRL (internal/auth/store/revocation/store_redis.go):
// SET-with-TTL for marking, GET for the existence check, redis.Nil mapped
// to "not seen" rather than an error.
type RedisDedupeChecker struct {
	client *redis.Client
}

// NewRedisDedupeChecker constructs a RedisDedupeChecker.
func NewRedisDedupeChecker(client *redis.Client) *RedisDedupeChecker {
	return &RedisDedupeChecker{client: client}
}

// Seen reports whether eventID has been marked within its TTL window.
func (r *RedisDedupeChecker) Seen(ctx context.Context, eventID string) (bool, error) {
	_, err := r.client.Get(ctx, dedupeKeyPrefix+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkSeen records eventID as seen for ttl.
func (r *RedisDedupeChecker) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	return r.client.Set(ctx, dedupeKeyPrefix+eventID, "1", ttl).Err()
}
