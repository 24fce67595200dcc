package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailprov/backend/internal/auth"
	"mailprov/backend/internal/domain"
)

// 上下文键
const (
	ContextActor  = "actor"
	ContextUserID = "userID"
)

// JWTAuth JWT认证中间件
type JWTAuth struct {
	jwtManager *auth.JWTManager
	log        *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(jwtManager *auth.JWTManager, log *zap.Logger) *JWTAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTAuth{
		jwtManager: jwtManager,
		log:        log,
	}
}

// RequireAuth 要求JWT认证
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "请先登录",
			})
			c.Abort()
			return
		}

		actor, err := ja.jwtManager.ValidateToken(token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "登录已失效，请重新登录",
			})
			c.Abort()
			return
		}

		// 将调用方身份存储到上下文
		c.Set(ContextActor, actor)
		c.Set(ContextUserID, actor.UserID)

		c.Next()
	}
}

// ActorFromContext 读取 RequireAuth 写入的调用方身份
func ActorFromContext(c *gin.Context) (domain.Actor, bool) {
	value, exists := c.Get(ContextActor)
	if !exists {
		return domain.Actor{}, false
	}
	actor, ok := value.(domain.Actor)
	return actor, ok && actor.Valid()
}

// extractToken 从请求中提取JWT token
func (ja *JWTAuth) extractToken(c *gin.Context) string {
	// 1. 从 Authorization header 提取
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// 2. 从 cookie 提取
	token, err := c.Cookie("access_token")
	if err == nil && token != "" {
		return token
	}

	return ""
}
