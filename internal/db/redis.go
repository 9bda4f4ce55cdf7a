package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zhulink-cascade/internal/config"

	"github.com/redis/go-redis/v9"
)

// OpenRedis 创建客户端并 Ping 一次，用于清理任务的分布式租约
func OpenRedis(ctx context.Context, conf config.RedisConfig) (*redis.Client, error) {
	options := &redis.Options{
		Addr: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		DB:   conf.DB,
	}
	// 只有当密码不为空时才设置密码
	if conf.Password != "" {
		options.Password = conf.Password
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	slog.Info("Redis连接成功", "addr", options.Addr)
	return client, nil
}
