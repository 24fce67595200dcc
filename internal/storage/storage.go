package storage

import (
	"context"
	"errors"
	"time"

	"mailprov/backend/internal/domain"
)

var (
	// ErrShareNotFound 分享记录不存在或已被取回
	ErrShareNotFound = errors.New("share record not found")
	// ErrShareExists 令牌冲突
	ErrShareExists = errors.New("share record already exists")
	// ErrUserNotFound 用户未找到错误
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists 用户已存在错误
	ErrUserExists = errors.New("user already exists")
)

// ShareRepository 定义一次性密码分享记录的存取操作。
//
// ConsumeShare 必须是原子的：同一令牌并发取回时最多只有一方拿到记录。
type ShareRepository interface {
	SaveShare(ctx context.Context, record *domain.ShareRecord) error
	ConsumeShare(ctx context.Context, token string) (*domain.ShareRecord, error)
	PurgeSharesBefore(ctx context.Context, cutoff time.Time) (int64, error) // 删除过期记录，返回删除数量
}

// AuditRepository 定义邮箱开通审计日志的存取操作。
type AuditRepository interface {
	CreateEmailLog(ctx context.Context, log *domain.EmailLog) error
	ListRecentEmailLogs(ctx context.Context, limit int) ([]domain.EmailLog, error)
	ListEmailLogsByUser(ctx context.Context, userID string, limit int) ([]domain.EmailLog, error)
}

// UserRepository 定义操作员账户的存取操作。
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	SetUserActive(ctx context.Context, userID string, active bool, at time.Time) error
}

// RateLimitRepository 定义固定窗口计数器，用于登录失败节流。
type RateLimitRepository interface {
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error)
	ResetRateLimit(ctx context.Context, key string) error
}

// Store 聚合主数据库提供的全部仓储
type Store interface {
	AuditRepository
	UserRepository
}

// Pinger 可探测连通性的存储，供健康检查使用
type Pinger interface {
	Ping(ctx context.Context) error
}
