package auth

import (
	"mailprov/backend/internal/auth/jwt"
	"mailprov/backend/internal/config"
	"mailprov/backend/internal/domain"
)

// JWTManager JWT管理器包装
type JWTManager struct {
	manager *jwt.Manager
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(cfg *config.JWTConfig) *JWTManager {
	return &JWTManager{manager: jwt.NewManager(cfg.Secret, cfg.Issuer, cfg.AccessExpiry)}
}

// TokenResponse 令牌响应
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// GenerateToken 为操作员签发访问令牌
func (j *JWTManager) GenerateToken(user *domain.User) (*TokenResponse, error) {
	token, expiresIn, err := j.manager.GenerateAccessToken(user.ID, user.Email, user.IsAdmin)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	}, nil
}

// ValidateToken 验证令牌，返回调用方身份
func (j *JWTManager) ValidateToken(tokenString string) (domain.Actor, error) {
	claims, err := j.manager.ValidateToken(tokenString)
	if err != nil {
		return domain.Actor{}, err
	}

	return domain.Actor{
		UserID:  claims.UserID,
		Email:   claims.Email,
		IsAdmin: claims.IsAdmin,
	}, nil
}
