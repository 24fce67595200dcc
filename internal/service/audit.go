package service

import (
	"context"
	"time"

	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/storage"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditService 邮箱开通审计日志
type AuditService struct {
	repo storage.AuditRepository
	now  func() time.Time
}

// NewAuditService 创建审计服务
func NewAuditService(repo storage.AuditRepository) *AuditService {
	return &AuditService{repo: repo, now: time.Now}
}

// Record 写入一条审计记录
func (s *AuditService) Record(ctx context.Context, userID, emailAddress, domainName string, status domain.AuditStatus, errorMessage *string) error {
	return s.repo.CreateEmailLog(ctx, &domain.EmailLog{
		CreatedBy:    userID,
		EmailAddress: emailAddress,
		Domain:       domainName,
		Status:       status,
		ErrorMessage: errorMessage,
		CreatedAt:    s.now().UTC(),
	})
}

// Recent 返回最近的审计记录
func (s *AuditService) Recent(ctx context.Context, limit int) ([]domain.EmailLog, error) {
	return s.repo.ListRecentEmailLogs(ctx, clampLimit(limit))
}

// ByUser 返回指定操作员的审计记录
func (s *AuditService) ByUser(ctx context.Context, userID string, limit int) ([]domain.EmailLog, error) {
	return s.repo.ListEmailLogsByUser(ctx, userID, clampLimit(limit))
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultAuditLimit
	case limit > maxAuditLimit:
		return maxAuditLimit
	default:
		return limit
	}
}
