package sql

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/storage"
)

// ========== Share Repository ==========

// 密文和 IV 以 base64 文本存储，兼容取回页面直接读取

// SaveShare 保存分享记录
func (s *Store) SaveShare(ctx context.Context, record *domain.ShareRecord) error {
	query := s.rebind(`INSERT INTO passwords (link_hash, password, iv, email, created_at) VALUES (?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		record.Token,
		base64.StdEncoding.EncodeToString(record.Ciphertext),
		base64.StdEncoding.EncodeToString(record.IV),
		record.Email,
		record.CreatedAt,
	)
	if isDuplicateKey(err) {
		return storage.ErrShareExists
	}
	return err
}

// ConsumeShare 在事务中锁定并删除记录，保证只被取回一次
func (s *Store) ConsumeShare(ctx context.Context, token string) (*domain.ShareRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // 提交后回滚为空操作

	var (
		ciphertext, iv string
		record         = domain.ShareRecord{Token: token}
	)
	query := s.rebind(`SELECT password, iv, email, created_at FROM passwords WHERE link_hash = ? FOR UPDATE`)
	err = tx.QueryRowContext(ctx, query, token).Scan(&ciphertext, &iv, &record.Email, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrShareNotFound
	}
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM passwords WHERE link_hash = ?`), token)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, storage.ErrShareNotFound
	}
	if err := tx.Commit(); err != nil {
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
func (s *Store) PurgeSharesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM passwords WHERE created_at < ?`), cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
