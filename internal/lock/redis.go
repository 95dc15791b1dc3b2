package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/GSharvesh/Hac-KP/pkg/errors"
)

// RedisLocker serializes per-key work across service instances using
// redislock. The ttl bounds how long a crashed holder can block others.
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker creates a distributed locker on top of a redis client.
func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

// Acquire obtains the distributed lock for key, retrying with linear
// backoff until wait elapses.
func (l *RedisLocker) Acquire(ctx context.Context, key string, wait, ttl time.Duration) (func(), error) {
	backoff := 50 * time.Millisecond
	retries := int(wait / backoff)
	if retries < 1 {
		retries = 1
	}

	lk, err := l.client.Obtain(ctx, "takedown:lock:"+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(backoff), retries),
	})
	if err == redislock.ErrNotObtained {
		return nil, errors.ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock for %s: %w", key, err)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lk.Release(releaseCtx)
	}, nil
}
