package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockTTL     = 30 * time.Second
	defaultLockBackoff = 50 * time.Millisecond
	lockKeyPrefix      = "packflow:lock:"
)

// RedisLocker shares keyed locks between instances through redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker wraps an existing redis client.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		logger: logger,
	}
}

// Connect dials redis at addr and verifies the connection.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Acquire obtains every key, retrying with linear backoff until ctx expires.
func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (Release, error) {
	ordered := normalizeKeys(keys)
	held := make([]*redislock.Lock, 0, len(ordered))

	release := func(ctx context.Context) {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(ctx); err != nil {
				l.logger.Warn("failed to release lock", zap.String("key", held[i].Key()), zap.Error(err))
			}
		}
	}

	opts := &redislock.Options{RetryStrategy: redislock.LinearBackoff(defaultLockBackoff)}
	for _, key := range ordered {
		lk, err := l.client.Obtain(ctx, lockKeyPrefix+key, l.ttl, opts)
		if err != nil {
			release(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		held = append(held, lk)
	}

	return release, nil
}
