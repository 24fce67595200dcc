package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailprov/backend/internal/auth"
	"mailprov/backend/internal/config"
	"mailprov/backend/internal/health"
	"mailprov/backend/internal/middleware"
	"mailprov/backend/internal/monitoring"
	"mailprov/backend/internal/service"
	"mailprov/backend/internal/share"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config           *config.Config
	ProvisionService *service.ProvisionService
	AuditService     *service.AuditService
	AuthService      *auth.AuthService
	UserService      *auth.Service // 操作员账户管理
	JWTManager       *auth.JWTManager
	ShareIssuer      *share.Issuer
	Metrics          *monitoring.Metrics
	Health           *health.HealthChecker // 为空时只提供静态 /health
	Logger           *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log)
	router.Use(monitor.PanicRecovery())
	router.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health", "/health/live", "/health/ready", "/metrics"},
	}))
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	authHandler := NewAuthHandler(deps.AuthService, deps.Metrics, log)
	mailboxHandler := NewMailboxHandler(deps.ProvisionService, log)
	logHandler := NewLogHandler(deps.AuditService, log)
	shareHandler := NewShareHandler(deps.ShareIssuer, deps.Metrics, log)
	adminHandler := NewAdminHandler(deps.UserService, log)

	// 创建中间件
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, log)
	adminAuth := middleware.NewAdminAuth(deps.UserService)
	jsonOnly := middleware.ValidateContentType("application/json")

	// 健康检查与指标
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	}
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	// 一次性密码取回（公开，凭令牌访问）
	router.GET("/share/retrieve", middleware.NoStore(), shareHandler.Retrieve)

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/login", jsonOnly, middleware.NoStore(), authHandler.Login)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		// 以下路由都需要登录
		protected := v1.Group("")
		protected.Use(jwtAuth.RequireAuth())

		// ========== Domain Routes ==========
		protected.GET("/domains", mailboxHandler.ListDomains)

		// ========== Mailbox Routes ==========
		mailboxRoutes := protected.Group("/mailboxes")
		{
			// 响应中包含明文密码
			mailboxRoutes.POST("/bulk", jsonOnly, middleware.BodySizeLimit(middleware.BatchBodyLimit), middleware.NoStore(), mailboxHandler.BulkCreate)
			mailboxRoutes.POST("", jsonOnly, middleware.NoStore(), mailboxHandler.CreateSingle)
			mailboxRoutes.GET("", mailboxHandler.List)
			mailboxRoutes.DELETE("/:email", adminAuth.RequireAdmin(), mailboxHandler.Delete)
		}

		// ========== Audit Log Routes ==========
		logRoutes := protected.Group("/logs")
		{
			logRoutes.GET("/recent", adminAuth.RequireAdmin(), logHandler.Recent)
			logRoutes.GET("/mine", logHandler.Mine)
		}

		// ========== Admin Routes ==========
		adminRoutes := protected.Group("/admin")
		adminRoutes.Use(adminAuth.RequireAdmin())
		{
			adminRoutes.GET("/users", adminHandler.ListUsers)
			adminRoutes.POST("/users", jsonOnly, adminHandler.CreateUser)
			adminRoutes.PATCH("/users/:id", jsonOnly, adminHandler.UpdateUser)
		}
	}

	return router
}
