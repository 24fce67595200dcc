package postgres

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/storage"
)

// querier 连接池和事务共有的方法
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ShareStore 基于 pgx 的分享记录存储，表结构与 SQL 存储一致
type ShareStore struct {
	db querier
}

var _ storage.ShareRepository = (*ShareStore)(nil)

// NewShareStore 创建分享记录存储
func NewShareStore(c *Client) *ShareStore {
	return &ShareStore{db: c.pool}
}

// SaveShare 保存分享记录
func (s *ShareStore) SaveShare(ctx context.Context, record *domain.ShareRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO passwords (link_hash, password, iv, email, created_at) VALUES ($1, $2, $3, $4, $5)`,
		record.Token,
		base64.StdEncoding.EncodeToString(record.Ciphertext),
		base64.StdEncoding.EncodeToString(record.IV),
		record.Email,
		record.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return storage.ErrShareExists
	}
	return err
}

// ConsumeShare 用 DELETE ... RETURNING 在一条语句内取出并删除记录
func (s *ShareStore) ConsumeShare(ctx context.Context, token string) (*domain.ShareRecord, error) {
	var ciphertext, iv string
	record := domain.ShareRecord{Token: token}

	err := s.db.QueryRow(ctx,
		`DELETE FROM passwords WHERE link_hash = $1 RETURNING password, iv, email, created_at`,
		token,
	).Scan(&ciphertext, &iv, &record.Email, &record.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrShareNotFound
	}
	if err != nil {
		return nil, err
	}

	if record.Ciphertext, err = base64.StdEncoding.DecodeString(ciphertext); err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	if record.IV, err = base64.StdEncoding.DecodeString(iv); err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	record.Consumed = true
	return &record, nil
}

// PurgeSharesBefore 删除过期记录
func (s *ShareStore) PurgeSharesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM passwords WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
