package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zhulink-cascade/internal/config"
	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/observability"
	"zhulink-cascade/internal/store"
)

// Locker 防止多个实例同时执行清理，release 在本次执行结束后调用
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Reaper 每天定时物理删除超过保留期的软删除数据
// 每张表独立按 deleted_at 判断，不做级联
type Reaper struct {
	store         store.Store
	retentionDays int
	hour, minute  int
	now           func() time.Time
	locker        Locker
	resolver      *OwnershipResolver
	metrics       *observability.Metrics

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func NewReaper(s store.Store, conf config.ReaperConfig, metrics *observability.Metrics) (*Reaper, error) {
	hour, minute, err := conf.Clock()
	if err != nil {
		return nil, err
	}
	return &Reaper{
		store:         s,
		retentionDays: conf.RetentionDays,
		hour:          hour,
		minute:        minute,
		now:           time.Now,
		metrics:       metrics,
	}, nil
}

// WithLocker 启用分布式租约，拿不到租约时跳过本次执行
func (r *Reaper) WithLocker(l Locker) *Reaper {
	r.locker = l
	return r
}

// WithResolver 删除后同步清理所有权缓存
func (r *Reaper) WithResolver(res *OwnershipResolver) *Reaper {
	r.resolver = res
	return r
}

// SetClock 替换时间来源，测试用
func (r *Reaper) SetClock(now func() time.Time) {
	r.now = now
}

// Purge 删除 is_deleted 且 deleted_at 早于 now - retentionDays 的行
func (r *Reaper) Purge(ctx context.Context, kind models.Kind, retentionDays int) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention days must not be negative, got %d", retentionDays)
	}
	cutoff := r.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	f := store.Filter{OnlyDeleted: true, DeletedBefore: &cutoff}

	var n int64
	var err error
	if r.resolver != nil && cachesAncestor(kind) {
		n, err = r.purgePaged(ctx, kind, f)
	} else {
		n, err = r.store.HardDelete(ctx, kind, f)
	}
	r.metrics.Purged(string(kind), n)
	if err != nil {
		return n, fmt.Errorf("purge %s: %w", kind.Table(), err)
	}
	return n, nil
}

// purgePaged 每页先删除再清理这一页的所有权缓存，内存占用与表大小无关
func (r *Reaper) purgePaged(ctx context.Context, kind models.Kind, f store.Filter) (int64, error) {
	var total int64
	var cursor uint
	for {
		page, err := r.store.IDs(ctx, kind, f, cursor, defaultBatchSize)
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			return total, nil
		}
		pf := f
		pf.IDs = page
		n, err := r.store.HardDelete(ctx, kind, pf)
		total += n
		if err != nil {
			return total, err
		}
		for _, id := range page {
			r.resolver.Forget(kind, id)
		}
		if len(page) < defaultBatchSize {
			return total, nil
		}
		cursor = page[len(page)-1]
	}
}

// RunOnce 按配置的保留天数执行一次完整清理
func (r *Reaper) RunOnce(ctx context.Context) (map[models.Kind]int64, error) {
	return r.PurgeAll(ctx, r.retentionDays)
}

// PurgeAll 依次清理 forums、posts、comments、votes，单表失败不影响其他表
func (r *Reaper) PurgeAll(ctx context.Context, retentionDays int) (map[models.Kind]int64, error) {
	if r.locker != nil {
		release, err := r.locker.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	start := r.now()
	purged := make(map[models.Kind]int64, len(models.AllKinds))
	var errs []error
	for _, kind := range models.AllKinds {
		n, err := r.Purge(ctx, kind, retentionDays)
		purged[kind] = n
		if err != nil {
			slog.Error("清理失败", "table", kind.Table(), "error", err)
			errs = append(errs, err)
			continue
		}
		slog.Info("清理完成", "table", kind.Table(), "rows", n, "retention_days", retentionDays)
	}
	slog.Info("本次清理结束", "elapsed", r.now().Sub(start))
	return purged, errors.Join(errs...)
}

// Start 启动每日定时清理，重复调用无效
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(r.stop, r.done)
	slog.Info("定时清理任务已启动", "run_at", fmt.Sprintf("%02d:%02d", r.hour, r.minute), "retention_days", r.retentionDays)
}

// Stop 结束定时循环，正在执行的清理会先完成
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()
	<-done
}

func (r *Reaper) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		// 计算到下一个执行时间点的时间
		now := r.now()
		timer := time.NewTimer(r.nextRun(now).Sub(now))
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		slog.Info("开始定时清理软删除数据...")
		if _, err := r.RunOnce(context.Background()); err != nil {
			if errors.Is(err, ErrLockHeld) {
				slog.Info("其他实例正在清理，跳过本次执行")
				continue
			}
			slog.Error("定时清理出错", "error", err)
		}
	}
}

// nextRun 返回 now 之后最近的 hour:minute
func (r *Reaper) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), r.hour, r.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
