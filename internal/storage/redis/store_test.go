package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/storage"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewFromClient(rdb, nil), mr
}

func TestShareStore(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	store := NewShareStore(client, time.Hour)

	record := &domain.ShareRecord{
		Token:      "beef",
		Ciphertext: []byte{0x01, 0x02, 0xff},
		IV:         []byte("0123456789ab"),
		Email:      "alice@example.com",
		CreatedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveShare(ctx, record))

	t.Run("记录带有过期时间", func(t *testing.T) {
		assert.Equal(t, time.Hour, mr.TTL(shareKeyPrefix+"beef"))
	})

	t.Run("令牌冲突", func(t *testing.T) {
		assert.ErrorIs(t, store.SaveShare(ctx, record), storage.ErrShareExists)
	})

	t.Run("只能取回一次", func(t *testing.T) {
		got, err := store.ConsumeShare(ctx, "beef")
		require.NoError(t, err)
		assert.Equal(t, record.Ciphertext, got.Ciphertext)
		assert.Equal(t, record.IV, got.IV)
		assert.Equal(t, "alice@example.com", got.Email)
		assert.True(t, record.CreatedAt.Equal(got.CreatedAt))
		assert.True(t, got.Consumed)

		_, err = store.ConsumeShare(ctx, "beef")
		assert.ErrorIs(t, err, storage.ErrShareNotFound)
	})

	t.Run("过期后不可取回", func(t *testing.T) {
		require.NoError(t, store.SaveShare(ctx, &domain.ShareRecord{Token: "stale", CreatedAt: time.Now()}))
		mr.FastForward(2 * time.Hour)

		_, err := store.ConsumeShare(ctx, "stale")
		assert.ErrorIs(t, err, storage.ErrShareNotFound)
	})
}

func TestClient_RateLimit(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	for i := int64(1); i <= 3; i++ {
		count, err := client.IncrementRateLimit(ctx, "login:alice", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}
	assert.Equal(t, time.Minute, mr.TTL(rateLimitKeyPrefix+"login:alice"))

	t.Run("窗口过期后重新计数", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		count, err := client.IncrementRateLimit(ctx, "login:alice", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("重置计数", func(t *testing.T) {
		require.NoError(t, client.ResetRateLimit(ctx, "login:alice"))
		assert.False(t, mr.Exists(rateLimitKeyPrefix+"login:alice"))
	})
}
