package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailprov/backend/internal/auth"
	"mailprov/backend/internal/middleware"
)

// AdminHandler 操作员账户管理
type AdminHandler struct {
	users *auth.Service
	log   *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(users *auth.Service, log *zap.Logger) *AdminHandler {
	return &AdminHandler{users: users, log: log}
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"isAdmin"`
}

type updateUserRequest struct {
	IsActive *bool `json:"isActive"`
}

// ListUsers 列出操作员
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error("list users failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	items := make([]userResponse, 0, len(users))
	for i := range users {
		items = append(items, toUserResponse(&users[i]))
	}
	Success(c, gin.H{"items": items, "count": len(items)})
}

// CreateUser 创建操作员
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		BadRequest(c, MsgFieldsRequired)
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Email, req.Password, req.IsAdmin)
	if err != nil {
		h.log.Warn("create operator failed", zap.String("email", req.Email), zap.Error(err))
		ErrorFrom(c, err)
		return
	}

	actor, _ := middleware.ActorFromContext(c)
	h.log.Info("operator created",
		zap.String("user_id", user.ID),
		zap.String("email", user.Email),
		zap.String("by", actor.UserID),
	)
	Created(c, toUserResponse(user))
}

// UpdateUser 启用或禁用操作员
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	userID := c.Param("id")
	actor, _ := middleware.ActorFromContext(c)
	if userID == actor.UserID && !*req.IsActive {
		BadRequest(c, "不能禁用自己的账户")
		return
	}

	if err := h.users.SetUserActive(c.Request.Context(), userID, *req.IsActive); err != nil {
		ErrorFrom(c, err)
		return
	}

	h.log.Info("operator status changed",
		zap.String("user_id", userID),
		zap.Bool("active", *req.IsActive),
		zap.String("by", actor.UserID),
	)
	SuccessWithMsg(c, "已更新", nil)
}
