package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"usage-cost/internal/errors"
)

// RedisClient is the subset of a go-redis client the tracker uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisTracker keeps the marker in a single key without expiry.
type RedisTracker struct {
	client RedisClient
	key    string
	closer func() error
}

// NewRedisTracker creates a tracker for key.
func NewRedisTracker(client RedisClient, key string) *RedisTracker {
	return &RedisTracker{client: client, key: key}
}

func (t *RedisTracker) Load(ctx context.Context) (string, error) {
	id, err := t.client.Get(ctx, t.key).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", errors.Progress("failed to load progress marker", err).WithContext("key", t.key)
	}
	return id, nil
}

func (t *RedisTracker) Advance(ctx context.Context, id string) error {
	if err := t.client.Set(ctx, t.key, id, 0).Err(); err != nil {
		return errors.Progress(fmt.Sprintf("failed to advance progress marker to %q", id), err).WithContext("key", t.key)
	}
	return nil
}

func (t *RedisTracker) Close() error {
	if t.closer != nil {
		return t.closer()
	}
	return nil
}
