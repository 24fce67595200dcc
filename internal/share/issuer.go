// Package share 负责一次性密码分享链接的签发与取回。
//
// 明文密码经 AES-256-GCM 加密后保存，令牌为与密码无关的 256 位随机值；
// 取回即删除，过期记录由后台任务定期清理。
package share

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"mailprov/backend/internal/config"
	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/logger"
	"mailprov/backend/internal/storage"
)

var (
	// ErrShareIssuance 分享链接签发失败
	ErrShareIssuance = errors.New("share link issuance failed")
	// ErrShareNotFound 链接无效、已被使用或已过期
	ErrShareNotFound = errors.New("share link not found or already used")
)

// Secret 取回的凭据
type Secret struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Issuer 分享链接签发器
type Issuer struct {
	repo    storage.ShareRepository
	key     []byte
	baseURL string
	ttl     time.Duration
	random  io.Reader
	now     func() time.Time
	log     *zap.Logger
}

// Option 配置签发器
type Option func(*Issuer)

// WithRandom 替换随机源
func WithRandom(r io.Reader) Option {
	return func(i *Issuer) {
		i.random = r
	}
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// WithLogger 设置日志记录器
func WithLogger(log *zap.Logger) Option {
	return func(i *Issuer) {
		i.log = log
	}
}

// NewIssuer 创建签发器，加密密钥由 cfg.EncryptionKey 派生
func NewIssuer(repo storage.ShareRepository, cfg config.ShareConfig, opts ...Option) (*Issuer, error) {
	key, err := DeriveKey(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	i := &Issuer{
		repo:    repo,
		key:     key,
		baseURL: cfg.BaseURL,
		ttl:     cfg.TTL,
		random:  rand.Reader,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue 加密保存密码并返回取回链接
func (i *Issuer) Issue(ctx context.Context, password, email string) (string, error) {
	token, err := newToken(i.random)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrShareIssuance, err)
	}

	iv, ciphertext, err := seal(i.key, i.random, []byte(password), []byte(token))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrShareIssuance, err)
	}

	record := &domain.ShareRecord{
		Token:      token,
		Ciphertext: ciphertext,
		IV:         iv,
		Email:      email,
		CreatedAt:  i.now().UTC(),
	}
	if err := i.repo.SaveShare(ctx, record); err != nil {
		return "", fmt.Errorf("%w: %v", ErrShareIssuance, err)
	}

	i.log.Debug("share link issued",
		zap.String("email", email),
		logger.Fingerprint("token", token),
	)
	return i.baseURL + token, nil
}

// Retrieve 取回并销毁分享记录，第二次取回返回 ErrShareNotFound
func (i *Issuer) Retrieve(ctx context.Context, token string) (*Secret, error) {
	if !validToken(token) {
		return nil, ErrShareNotFound
	}

	record, err := i.repo.ConsumeShare(ctx, token)
	if errors.Is(err, storage.ErrShareNotFound) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume share: %w", err)
	}

	if record.Expired(i.ttl, i.now()) {
		i.log.Info("expired share link requested",
			zap.String("email", record.Email),
			zap.Time("created_at", record.CreatedAt),
		)
		return nil, ErrShareNotFound
	}

	plaintext, err := open(i.key, record.IV, record.Ciphertext, []byte(token))
	if err != nil {
		return nil, err
	}

	return &Secret{Email: record.Email, Password: string(plaintext)}, nil
}

// Cleanup 删除超过保留期限的记录
func (i *Issuer) Cleanup(ctx context.Context) (int64, error) {
	if i.ttl <= 0 {
		return 0, nil
	}
	return i.repo.PurgeSharesBefore(ctx, i.now().Add(-i.ttl))
}

// RunCleanup 按固定间隔执行清理，直到 ctx 取消
func (i *Issuer) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := i.Cleanup(ctx)
			if err != nil {
				i.log.Warn("share cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				i.log.Info("expired share links purged", zap.Int64("count", removed))
			}
		}
	}
}

func validToken(token string) bool {
	if len(token) != 64 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
