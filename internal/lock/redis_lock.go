package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/easypay/payment-gateway/pkg/logger"
	"github.com/easypay/payment-gateway/pkg/redis"
)

type RedisLockerConfig struct {
	LockTTL      time.Duration
	PollInterval time.Duration
	KeyPrefix    string
}

func DefaultRedisLockerConfig() RedisLockerConfig {
	return RedisLockerConfig{
		LockTTL:      30 * time.Second,
		PollInterval: 50 * time.Millisecond,
		KeyPrefix:    "reconcile-lock:",
	}
}

// RedisLocker serializes reconciliation across service instances with a
// SetNX lease. The TTL bounds how long a crashed holder can block a key.
type RedisLocker struct {
	redis  redis.RedisAdapter
	config RedisLockerConfig
}

func NewRedisLocker(redisAdapter redis.RedisAdapter, config RedisLockerConfig) *RedisLocker {
	if config.LockTTL <= 0 {
		config.LockTTL = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 50 * time.Millisecond
	}
	return &RedisLocker{redis: redisAdapter, config: config}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := l.config.KeyPrefix + key
	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))

	for {
		acquired, err := l.redis.SetNX(lockKey, lockValue, l.config.LockTTL)
		if err != nil {
			logger.Error("failed to acquire lock", "key", key, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, ctx.Err())
		case <-time.After(l.config.PollInterval):
		}
	}

	logger.Debug("reconciliation lock acquired", "key", key, "lock_ttl", l.config.LockTTL)

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if err := l.redis.Del(lockKey); err != nil {
			logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}, nil
}
