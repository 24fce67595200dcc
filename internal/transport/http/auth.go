package httptransport

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailprov/backend/internal/auth"
	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/middleware"
	"mailprov/backend/internal/monitoring"
)

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.AuthService // 登录与令牌签发
	metrics     *monitoring.Metrics
	log         *zap.Logger // 结构化日志记录器
}

// NewAuthHandler 创建新的认证处理器实例
func NewAuthHandler(authService *auth.AuthService, metrics *monitoring.Metrics, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		metrics:     metrics,
		log:         log,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresIn   int64        `json:"expiresIn"`
}

type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	IsAdmin     bool       `json:"isAdmin"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func toUserResponse(user *domain.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Email:       user.Email,
		IsAdmin:     user.IsAdmin,
		IsActive:    user.IsActive,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

// Login 处理操作员登录请求
// @Summary 操作员登录
// @Description 使用邮箱和密码进行身份验证，成功后返回访问令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录凭证"
// @Success 200 {object} authResponse "登录成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "邮箱或密码错误"
// @Failure 403 {object} Response "账户已被禁用"
// @Failure 429 {object} Response "失败次数过多"
// @Router /v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		BadRequest(c, "请输入邮箱和密码")
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserInactive):
			h.metrics.RecordLogin("invalid")
		case errors.Is(err, auth.ErrTooManyAttempts):
			h.metrics.RecordLogin("throttled")
			h.log.Warn("login throttled", zap.String("email", req.Email), zap.String("ip", c.ClientIP()))
		default:
			h.metrics.RecordLogin("error")
			h.log.Error("failed to login", zap.Error(err))
		}
		ErrorFrom(c, err)
		return
	}

	h.metrics.RecordLogin("ok")
	h.log.Info("user logged in",
		zap.String("user_id", resp.User.ID),
		zap.String("email", resp.User.Email),
	)

	Success(c, authResponse{
		User:        toUserResponse(resp.User),
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresIn:   resp.ExpiresIn,
	})
}

// Me 返回当前登录的操作员
// @Summary 当前操作员
// @Tags 认证
// @Produce json
// @Success 200 {object} userResponse
// @Failure 401 {object} Response "未登录"
// @Router /v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	user, err := h.authService.GetUserByID(c.Request.Context(), actor.UserID)
	if err != nil {
		NotFound(c, MsgUserNotFound)
		return
	}

	Success(c, toUserResponse(user))
}
