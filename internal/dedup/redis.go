package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

const redisKeyPrefix = "fp:"

// RedisStore keeps fingerprints as keys that expire after the dedup horizon
type RedisStore struct {
	client  *redis.Client
	horizon time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a fingerprint store on an existing client
func NewRedisStore(client *redis.Client, horizon time.Duration) *RedisStore {
	return &RedisStore{client: client, horizon: horizon}
}

// CheckAndInsert uses SET NX so that only the first writer wins
func (r *RedisStore) CheckAndInsert(ctx context.Context, fp string, at time.Time) (bool, error) {
	ok, err := r.client.SetNX(ctx, redisKeyPrefix+fp, at.Unix(), r.horizon).Result()
	if err != nil {
		return false, &models.StorageError{Op: "fingerprint check-and-insert", Err: fmt.Errorf("redis setnx: %w", err)}
	}
	return ok, nil
}

// EvictBefore is a no-op: keys carry the horizon as their TTL
func (r *RedisStore) EvictBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// Ping checks connectivity
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
