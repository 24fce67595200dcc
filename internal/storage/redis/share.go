package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/storage"
)

const shareKeyPrefix = "share:"

// shareEntry Redis 中保存的分享记录
type shareEntry struct {
	Ciphertext []byte    `json:"ct"`
	IV         []byte    `json:"iv"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ShareStore 基于 Redis 的分享记录存储，记录按 TTL 自动过期
type ShareStore struct {
	client *Client
	ttl    time.Duration
}

var _ storage.ShareRepository = (*ShareStore)(nil)

// NewShareStore 创建分享记录存储，ttl<=0 时记录不过期
func NewShareStore(client *Client, ttl time.Duration) *ShareStore {
	return &ShareStore{client: client, ttl: ttl}
}

// SaveShare 写入分享记录，令牌已存在时返回 ErrShareExists
func (s *ShareStore) SaveShare(ctx context.Context, record *domain.ShareRecord) error {
	data, err := json.Marshal(shareEntry{
		Ciphertext: record.Ciphertext,
		IV:         record.IV,
		Email:      record.Email,
		CreatedAt:  record.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal share record: %w", err)
	}

	ok, err := s.client.rdb.SetNX(ctx, shareKeyPrefix+record.Token, data, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrShareExists
	}
	return nil
}

// ConsumeShare 使用 GETDEL 原子地取出并删除记录
func (s *ShareStore) ConsumeShare(ctx context.Context, token string) (*domain.ShareRecord, error) {
	data, err := s.client.rdb.GetDel(ctx, shareKeyPrefix+token).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrShareNotFound
	}
	if err != nil {
		return nil, err
	}

	var entry shareEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal share record: %w", err)
	}

	return &domain.ShareRecord{
		Token:      token,
		Ciphertext: entry.Ciphertext,
		IV:         entry.IV,
		Email:      entry.Email,
		CreatedAt:  entry.CreatedAt,
		Consumed:   true,
	}, nil
}

// PurgeSharesBefore 过期由 Redis 负责，这里无需处理
func (s *ShareStore) PurgeSharesBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}
