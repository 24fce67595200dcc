package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/storage"
)

var (
	// ErrInvalidEmail 无效的邮箱格式
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrInvalidPassword 密码不满足长度要求
	ErrInvalidPassword = errors.New("invalid password")
	// ErrEmailExists 邮箱已存在
	ErrEmailExists = errors.New("email already exists")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserInactive 用户已被禁用
	ErrUserInactive = errors.New("user is inactive")
	// ErrTooManyAttempts 登录失败次数过多
	ErrTooManyAttempts = errors.New("too many login attempts")
)

// 登录失败节流：窗口内失败超过上限即拒绝
const (
	maxLoginFailures = 5
	loginWindow      = 15 * time.Minute
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Service 操作员认证服务
type Service struct {
	users   storage.UserRepository
	limiter storage.RateLimitRepository
	log     *zap.Logger
	now     func() time.Time
}

// NewService 创建认证服务，limiter 为空时不做失败节流
func NewService(users storage.UserRepository, limiter storage.RateLimitRepository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		users:   users,
		limiter: limiter,
		log:     log,
		now:     time.Now,
	}
}

// CreateUser 创建操作员账户
func (s *Service) CreateUser(ctx context.Context, email, password string, isAdmin bool) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !ValidateEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Login 校验邮箱和密码
//
// 用户不存在与密码错误返回同一个错误，避免暴露账户是否存在。
func (s *Service) Login(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	key := "login:" + email
	if s.limiter != nil {
		count, err := s.limiter.IncrementRateLimit(ctx, key, loginWindow)
		if err != nil {
			// 限流存储不可用时放行
			s.log.Warn("login rate limit unavailable", zap.Error(err))
		} else if count > maxLoginFailures {
			return nil, ErrTooManyAttempts
		}
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		return nil, ErrInvalidCredentials
	}

	// 检查用户是否激活
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	// 验证密码
	if !CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if s.limiter != nil {
		if err := s.limiter.ResetRateLimit(ctx, key); err != nil {
			s.log.Warn("reset login rate limit failed", zap.Error(err))
		}
	}

	// 更新最后登录时间
	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		s.log.Warn("update last login failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	return user, nil
}

// GetUserByID 根据 ID 获取用户
func (s *Service) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ListUsers 列出全部操作员
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.ListUsers(ctx)
}

// SetUserActive 启用或禁用操作员
func (s *Service) SetUserActive(ctx context.Context, userID string, active bool) error {
	err := s.users.SetUserActive(ctx, userID, active, s.now().UTC())
	if errors.Is(err, storage.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}

// ValidateEmail 验证邮箱格式
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidatePassword 验证密码强度
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: must be at least 8 characters", ErrInvalidPassword)
	}
	// bcrypt 只使用前 72 字节
	if len(password) > 72 {
		return fmt.Errorf("%w: must be at most 72 characters", ErrInvalidPassword)
	}
	return nil
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// AuthService 组合登录校验与令牌签发
type AuthService struct {
	service    *Service
	jwtManager *JWTManager
}

// NewAuthService 创建认证服务
func NewAuthService(service *Service, jwtManager *JWTManager) *AuthService {
	return &AuthService{
		service:    service,
		jwtManager: jwtManager,
	}
}

// AuthResponse 认证响应
type AuthResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresIn   int64        `json:"expiresIn"`
}

// Login 用户登录
func (a *AuthService) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	user, err := a.service.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	// 生成令牌
	tokens, err := a.jwtManager.GenerateToken(user)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		User:        user,
		AccessToken: tokens.AccessToken,
		TokenType:   tokens.TokenType,
		ExpiresIn:   tokens.ExpiresIn,
	}, nil
}

// GetUserByID 根据ID获取用户
func (a *AuthService) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	return a.service.GetUserByID(ctx, userID)
}
