package services

import (
	"context"
	"fmt"
	"time"

	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/store"
	"zhulink-cascade/internal/utils"

	"golang.org/x/sync/singleflight"
)

// OwnershipResolver 只读取权限判断需要的字段
type OwnershipResolver struct {
	store store.Store
	cache *utils.TTLCache[string, models.Ref]
	group singleflight.Group
}

// NewOwnershipResolver cacheSize <= 0 时不缓存祖先节点
func NewOwnershipResolver(s store.Store, cacheSize int, cacheTTL time.Duration) (*OwnershipResolver, error) {
	r := &OwnershipResolver{store: s}
	if cacheSize > 0 {
		c, err := utils.NewTTLCache[string, models.Ref](cacheSize, cacheTTL)
		if err != nil {
			return nil, err
		}
		r.cache = c
	}
	return r, nil
}

// OwnerOf 返回所有者 id，不存在时返回 store.ErrNotFound
func (r *OwnershipResolver) OwnerOf(ctx context.Context, kind models.Kind, id uint) (uint, error) {
	return r.store.OwnerOf(ctx, kind, id)
}

// Resolve 读取被删除对象本身的投影，总是直接查库
func (r *OwnershipResolver) Resolve(ctx context.Context, kind models.Kind, id uint) (models.Ref, error) {
	return r.store.Ref(ctx, kind, id)
}

// Ancestor 读取祖先节点的所有者和父级 id
// 这些字段创建后不再变化，可以缓存；IsDeleted 可能过期，调用方不应使用
func (r *OwnershipResolver) Ancestor(ctx context.Context, kind models.Kind, id uint) (models.Ref, error) {
	key := fmt.Sprintf("%s:%d", kind, id)
	if r.cache != nil {
		if ref, ok := r.cache.Get(key); ok {
			return ref, nil
		}
	}

	// 共享查询不随第一个调用方取消，每个调用方只受自己的 ctx 约束
	ch := r.group.DoChan(key, func() (interface{}, error) {
		ref, err := r.store.Ref(context.WithoutCancel(ctx), kind, id)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			r.cache.Set(key, ref)
		}
		return ref, nil
	})
	select {
	case <-ctx.Done():
		return models.Ref{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.Ref{}, res.Err
		}
		return res.Val.(models.Ref), nil
	}
}

// cachesAncestor 权限判断只会把帖子和版块作为祖先读取
func cachesAncestor(kind models.Kind) bool {
	return kind == models.KindPost || kind == models.KindForum
}

// Forget 清除缓存，供清理任务物理删除后调用
func (r *OwnershipResolver) Forget(kind models.Kind, id uint) {
	if r.cache != nil {
		r.cache.Delete(fmt.Sprintf("%s:%d", kind, id))
	}
}
