package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a per-user lock held with SET NX PX.
type RedisLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLock(rdb *redis.Client, ttl time.Duration) *RedisLock {
	return &RedisLock{rdb: rdb, ttl: ttl}
}

func (l *RedisLock) Key(userID string) string {
	return fmt.Sprintf("checkout:lock:%s", userID)
}

func (l *RedisLock) Lock(ctx context.Context, userID string) (func(), error) {
	key := l.Key(userID)
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, unavailable("redis", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: another checkout is in progress", ErrPendingOrderExists)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			log.Printf("⚠️ Failed to release lock %s: %v", key, err)
		}
	}, nil
}

// noopLock is used when no Redis is configured.
type noopLock struct{}

func (noopLock) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}
