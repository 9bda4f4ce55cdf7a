package utils

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheItem 包装缓存数据和过期时间
type cacheItem[V any] struct {
	data      V
	expiresAt time.Time
}

// TTLCache 带过期时间的 LRU 本地缓存
type TTLCache[K comparable, V any] struct {
	lruCache *lru.Cache[K, cacheItem[V]]
	ttl      time.Duration
	now      func() time.Time
}

// NewTTLCache size 为容量，ttl <= 0 表示永不过期
func NewTTLCache[K comparable, V any](size int, ttl time.Duration) (*TTLCache[K, V], error) {
	l, err := lru.New[K, cacheItem[V]](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &TTLCache[K, V]{lruCache: l, ttl: ttl, now: time.Now}, nil
}

// SetClock 替换时间来源，测试用
func (c *TTLCache[K, V]) SetClock(now func() time.Time) {
	c.now = now
}

// Set 设置缓存
func (c *TTLCache[K, V]) Set(key K, data V) {
	item := cacheItem[V]{data: data}
	if c.ttl > 0 {
		item.expiresAt = c.now().Add(c.ttl)
	}
	c.lruCache.Add(key, item)
}

// Get 获取缓存，不存在或已过期返回 false
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	val, ok := c.lruCache.Get(key)
	if !ok {
		return zero, false
	}

	// 检查过期
	if !val.expiresAt.IsZero() && c.now().After(val.expiresAt) {
		c.lruCache.Remove(key)
		return zero, false
	}
	return val.data, true
}

// Delete 删除指定缓存
func (c *TTLCache[K, V]) Delete(key K) {
	c.lruCache.Remove(key)
}

func (c *TTLCache[K, V]) Len() int {
	return c.lruCache.Len()
}
