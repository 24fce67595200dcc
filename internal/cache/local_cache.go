package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LocalCache 本地内存缓存
//
// 特点：
// - 支持 TTL 过期
// - GetOrLoad 合并同一键的并发加载
// - 由 RunCleanup 定期清理过期条目
type LocalCache[V any] struct {
	mu    sync.RWMutex
	data  map[string]cacheEntry[V]
	ttl   time.Duration
	group singleflight.Group
	now   func() time.Time
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存，ttl 为默认过期时间
func NewLocalCache[V any](ttl time.Duration) *LocalCache[V] {
	return &LocalCache[V]{
		data: make(map[string]cacheEntry[V]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get 获取缓存值
func (c *LocalCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		c.Delete(key)
		return zero, false
	}
	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间
func (c *LocalCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	c.data[key] = cacheEntry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
}

// Delete 删除缓存值
func (c *LocalCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// GetOrLoad 命中则直接返回，否则调用 load 并缓存结果；load 出错时不缓存
func (c *LocalCache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if value, ok := c.Get(key); ok {
			return value, nil
		}
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value, 0)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Purge 删除所有过期条目，返回删除数量
func (c *LocalCache[V]) Purge() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// RunCleanup 定期清理过期条目，直到 ctx 取消
func (c *LocalCache[V]) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Purge()
		}
	}
}
