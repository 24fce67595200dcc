package sql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/storage"
)

// ========== User Repository ==========

const userColumns = `id, email, password_hash, is_admin, is_active, created_at, updated_at, last_login_at`

// CreateUser 创建新用户
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	query := s.rebind(`
		INSERT INTO users (id, email, password_hash, is_admin, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.IsAdmin,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isDuplicateKey(err) {
		return storage.ErrUserExists
	}
	return err
}

// GetUserByID 根据ID获取用户
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER(?)`)
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

// UpdateLastLogin 更新最后登录时间
func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	query := s.rebind(`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, at, at, userID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// ListUsers 按创建时间列出全部操作员
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// SetUserActive 启用或禁用操作员
func (s *Store) SetUserActive(ctx context.Context, userID string, active bool, at time.Time) error {
	query := s.rebind(`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, active, at, userID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var lastLoginAt sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Time
	}
	return &user, nil
}
