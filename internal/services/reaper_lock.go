package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("reaper lease is held by another instance")

const reaperLockKey = "cascade:reaper:lock"

// 只删除自己持有的租约
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease 基于 SET NX PX 的租约，ttl 应大于一次清理的最长耗时
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisLease(client *redis.Client, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, key: reaperLockKey, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (func(), error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire reaper lease: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		if err := releaseScript.Run(context.Background(), l.client, []string{l.key}, token).Err(); err != nil {
			slog.Warn("释放清理租约失败", "key", l.key, "error", err)
		}
	}, nil
}
