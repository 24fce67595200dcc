package sql

import (
	"context"
	"database/sql"

	"mailprov/backend/internal/domain"
)

// ========== Audit Repository ==========

const defaultLogLimit = 50

// CreateEmailLog 写入一条审计记录
func (s *Store) CreateEmailLog(ctx context.Context, log *domain.EmailLog) error {
	query := s.rebind(`
		INSERT INTO email_logs (created_by, email_address, domain, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		log.CreatedBy,
		log.EmailAddress,
		log.Domain,
		string(log.Status),
		log.ErrorMessage,
		log.CreatedAt,
	)
	return err
}

// ListRecentEmailLogs 返回最近的审计记录，关联操作员邮箱
func (s *Store) ListRecentEmailLogs(ctx context.Context, limit int) ([]domain.EmailLog, error) {
	query := s.rebind(`
		SELECT l.id, l.created_by, l.email_address, l.domain, l.status, l.error_message, l.created_at,
		       COALESCE(u.email, '')
		FROM email_logs l
		LEFT JOIN users u ON u.id = l.created_by
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT ?
	`)
	return s.queryLogs(ctx, query, normalizeLimit(limit))
}

// ListEmailLogsByUser 返回指定操作员的审计记录
func (s *Store) ListEmailLogsByUser(ctx context.Context, userID string, limit int) ([]domain.EmailLog, error) {
	query := s.rebind(`
		SELECT l.id, l.created_by, l.email_address, l.domain, l.status, l.error_message, l.created_at,
		       COALESCE(u.email, '')
		FROM email_logs l
		LEFT JOIN users u ON u.id = l.created_by
		WHERE l.created_by = ?
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT ?
	`)
	return s.queryLogs(ctx, query, userID, normalizeLimit(limit))
}

func (s *Store) queryLogs(ctx context.Context, query string, args ...interface{}) ([]domain.EmailLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.EmailLog, 0)
	for rows.Next() {
		var entry domain.EmailLog
		var status string
		var errMsg sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.CreatedBy,
			&entry.EmailAddress,
			&entry.Domain,
			&status,
			&errMsg,
			&entry.CreatedAt,
			&entry.CreatedByEmail,
		); err != nil {
			return nil, err
		}
		entry.Status = domain.AuditStatus(status)
		if errMsg.Valid {
			msg := errMsg.String
			entry.ErrorMessage = &msg
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultLogLimit
	}
	return limit
}
