package redis

import (
	"context"
	"time"

	"mailprov/backend/internal/storage"
)

const rateLimitKeyPrefix = "ratelimit:"

var _ storage.RateLimitRepository = (*Client)(nil)

// IncrementRateLimit 增加限流计数，首次计数时设置窗口过期时间
func (c *Client) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	key = rateLimitKeyPrefix + key

	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// ResetRateLimit 清除限流计数
func (c *Client) ResetRateLimit(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, rateLimitKeyPrefix+key).Err()
}
