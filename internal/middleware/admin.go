package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailprov/backend/internal/auth"
)

// AdminAuth 管理员权限中间件
type AdminAuth struct {
	authService *auth.Service
}

// NewAdminAuth 创建管理员权限中间件
func NewAdminAuth(authService *auth.Service) *AdminAuth {
	return &AdminAuth{
		authService: authService,
	}
}

// RequireAdmin 要求管理员权限，须挂在 RequireAuth 之后
//
// 令牌中的 is_admin 只作提示，以数据库中的当前状态为准，撤销权限后立即生效。
func (a *AdminAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "请先登录"})
			c.Abort()
			return
		}

		user, err := a.authService.GetUserByID(c.Request.Context(), actor.UserID)
		if err != nil || !user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "用户不存在或已禁用"})
			c.Abort()
			return
		}

		if !user.IsAdmin {
			c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "msg": "需要管理员权限"})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Next()
	}
}
