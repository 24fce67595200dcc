package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/storage"
)

// Store 使用内存保存操作员、审计日志和分享记录，主要用于开发验证。
type Store struct {
	mu      sync.RWMutex
	users   map[string]*domain.User // userID -> user
	byEmail map[string]string       // email -> userID
	logs    []domain.EmailLog
	nextLog uint64
	shares  map[string]*domain.ShareRecord // token -> record

	// 速率限制相关
	rateLimits        map[string]*rateLimitEntry
	rateLimitsCleanup time.Time // 下次清理过期速率限制的时间

	now func() time.Time
}

// rateLimitEntry 速率限制条目
type rateLimitEntry struct {
	Count     int64
	ExpiresAt time.Time
}

var (
	_ storage.Store               = (*Store)(nil)
	_ storage.ShareRepository     = (*Store)(nil)
	_ storage.RateLimitRepository = (*Store)(nil)
)

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		users:             make(map[string]*domain.User),
		byEmail:           make(map[string]string),
		shares:            make(map[string]*domain.ShareRecord),
		rateLimits:        make(map[string]*rateLimitEntry),
		rateLimitsCleanup: time.Now().Add(5 * time.Minute),
		now:               time.Now,
	}
}

// ========== 用户 ==========

// CreateUser 保存新用户，邮箱不区分大小写且唯一
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := s.byEmail[key]; exists {
		return storage.ErrUserExists
	}
	if _, exists := s.users[user.ID]; exists {
		return storage.ErrUserExists
	}

	copied := *user
	s.users[user.ID] = &copied
	s.byEmail[key] = user.ID
	return nil
}

// GetUserByID 根据ID获取用户
func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

// UpdateLastLogin 更新最后登录时间
func (s *Store) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.LastLoginAt = &at
	user.UpdatedAt = at
	return nil
}

// ListUsers 按创建时间列出全部操作员
func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, *user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Email < users[j].Email
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// SetUserActive 启用或禁用操作员
func (s *Store) SetUserActive(_ context.Context, userID string, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.IsActive = active
	user.UpdatedAt = at
	return nil
}

// ========== 审计日志 ==========

// CreateEmailLog 追加一条审计记录并分配自增ID
func (s *Store) CreateEmailLog(_ context.Context, log *domain.EmailLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLog++
	log.ID = s.nextLog
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	s.logs = append(s.logs, *log)
	return nil
}

// ListRecentEmailLogs 按时间倒序返回最近的审计记录，并填充操作员邮箱
func (s *Store) ListRecentEmailLogs(_ context.Context, limit int) ([]domain.EmailLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLogs(limit, func(domain.EmailLog) bool { return true }), nil
}

// ListEmailLogsByUser 按时间倒序返回指定操作员的审计记录
func (s *Store) ListEmailLogsByUser(_ context.Context, userID string, limit int) ([]domain.EmailLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLogs(limit, func(l domain.EmailLog) bool { return l.CreatedBy == userID }), nil
}

// collectLogs 调用方需持有读锁
func (s *Store) collectLogs(limit int, match func(domain.EmailLog) bool) []domain.EmailLog {
	out := make([]domain.EmailLog, 0)
	for i := len(s.logs) - 1; i >= 0; i-- {
		entry := s.logs[i]
		if !match(entry) {
			continue
		}
		if user, ok := s.users[entry.CreatedBy]; ok {
			entry.CreatedByEmail = user.Email
		}
		out = append(out, entry)
	}

	// 追加顺序即ID顺序，这里再按创建时间稳定排序，兼容调用方回填的时间
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ========== 分享记录 ==========

// SaveShare 保存分享记录
func (s *Store) SaveShare(_ context.Context, record *domain.ShareRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.shares[record.Token]; exists {
		return storage.ErrShareExists
	}
	copied := *record
	copied.Ciphertext = append([]byte(nil), record.Ciphertext...)
	copied.IV = append([]byte(nil), record.IV...)
	s.shares[record.Token] = &copied
	return nil
}

// ConsumeShare 取出并删除分享记录
func (s *Store) ConsumeShare(_ context.Context, token string) (*domain.ShareRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.shares[token]
	if !ok {
		return nil, storage.ErrShareNotFound
	}
	delete(s.shares, token)
	record.Consumed = true
	return record, nil
}

// PurgeSharesBefore 删除创建时间早于 cutoff 的分享记录
func (s *Store) PurgeSharesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for token, record := range s.shares {
		if record.CreatedAt.Before(cutoff) {
			delete(s.shares, token)
			removed++
		}
	}
	return removed, nil
}

// ========== 限流 ==========

// IncrementRateLimit 增加限流计数
func (s *Store) IncrementRateLimit(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	// 清理过期的速率限制条目（每5分钟清理一次）
	if now.After(s.rateLimitsCleanup) {
		for k, v := range s.rateLimits {
			if now.After(v.ExpiresAt) {
				delete(s.rateLimits, k)
			}
		}
		s.rateLimitsCleanup = now.Add(5 * time.Minute)
	}

	entry, exists := s.rateLimits[key]
	if !exists || now.After(entry.ExpiresAt) {
		s.rateLimits[key] = &rateLimitEntry{
			Count:     1,
			ExpiresAt: now.Add(window),
		}
		return 1, nil
	}

	entry.Count++
	return entry.Count, nil
}

// ResetRateLimit 清除限流计数
func (s *Store) ResetRateLimit(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rateLimits, key)
	return nil
}

// Ping 内存存储始终可用
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close 内存存储无需关闭
func (s *Store) Close() error {
	return nil
}
