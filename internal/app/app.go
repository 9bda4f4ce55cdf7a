// Package app 组装服务和命令行工具共用的依赖
package app

import (
	"context"
	"fmt"
	"log/slog"

	"zhulink-cascade/internal/config"
	"zhulink-cascade/internal/db"
	"zhulink-cascade/internal/observability"
	"zhulink-cascade/internal/services"
	"zhulink-cascade/internal/store"

	"github.com/redis/go-redis/v9"
)

type App struct {
	Conf       *config.AppConfig
	Store      store.Store
	Metrics    *observability.Metrics
	Pool       *services.WorkerPool
	Resolver   *services.OwnershipResolver
	Authorizer *services.Authorizer
	Engine     *services.CascadeEngine
	Reaper     *services.Reaper
	Sweeper    *services.Sweeper
	Rebuilder  *services.CounterRebuilder

	redis *redis.Client
}

// New 连接数据库（以及可选的 Redis）并创建全部服务
func New(ctx context.Context, conf *config.AppConfig) (*App, error) {
	if err := db.Init(conf.Database); err != nil {
		return nil, err
	}
	return Build(ctx, conf, store.NewGormStore(db.DB))
}

// Build 使用已有的 store 组装服务
func Build(ctx context.Context, conf *config.AppConfig, s store.Store) (*App, error) {
	a := &App{Conf: conf, Store: s, Metrics: observability.Init()}

	resolver, err := services.NewOwnershipResolver(s, conf.Cache.Size, conf.Cache.TTL)
	if err != nil {
		return nil, err
	}
	a.Resolver = resolver
	a.Authorizer = services.NewAuthorizer(resolver)
	a.Pool = services.NewWorkerPool(conf.Cascade.Workers, conf.Cascade.QueueSize, a.Metrics)
	a.Engine = services.NewCascadeEngine(s, a.Pool, conf.Cascade, a.Metrics)
	a.Sweeper = services.NewSweeper(a.Engine)
	a.Rebuilder = services.NewCounterRebuilder(s, conf.Cascade.BatchSize)

	reaper, err := services.NewReaper(s, conf.Reaper, a.Metrics)
	if err != nil {
		a.Pool.Close()
		return nil, err
	}
	a.Reaper = reaper.WithResolver(resolver)

	if conf.Redis.Enabled {
		client, err := db.OpenRedis(ctx, conf.Redis)
		if err != nil {
			a.Pool.Close()
			return nil, fmt.Errorf("reaper lease: %w", err)
		}
		a.redis = client
		a.Reaper.WithLocker(services.NewRedisLease(client, conf.Reaper.LockTTL))
	}
	return a, nil
}

// Close 等待队列中的级联任务执行完再断开连接
func (a *App) Close() {
	a.Reaper.Stop()
	a.Pool.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("关闭 Redis 连接失败", "error", err)
		}
	}
	if db.DB != nil {
		if sqlDB, err := db.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
