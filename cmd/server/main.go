package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailprov/backend/internal/auth"
	"mailprov/backend/internal/cache"
	"mailprov/backend/internal/config"
	"mailprov/backend/internal/health"
	"mailprov/backend/internal/logger"
	"mailprov/backend/internal/monitoring"
	"mailprov/backend/internal/password"
	"mailprov/backend/internal/plesk"
	"mailprov/backend/internal/service"
	"mailprov/backend/internal/share"
	"mailprov/backend/internal/storage"
	"mailprov/backend/internal/storage/memory"
	"mailprov/backend/internal/storage/postgres"
	redisstore "mailprov/backend/internal/storage/redis"
	sqlstore "mailprov/backend/internal/storage/sql"
	httptransport "mailprov/backend/internal/transport/http"
)

const (
	shareCleanupInterval = time.Hour
	cacheCleanupInterval = 10 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

// main 启动邮箱批量开通服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting mailprov server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("plesk_host", cfg.Plesk.Host),
	)

	components := make(map[string]storage.Pinger)
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// 主存储：操作员与审计日志
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		sqlStore, err := initializeDatabaseStorage(cfg, log)
		if err != nil {
			log.Fatal("failed to initialize database storage", zap.Error(err))
		}
		closers = append(closers, func() { _ = sqlStore.Close() })
		components["database"] = sqlStore
		store = sqlStore
	} else {
		// 使用内存存储（开发环境）
		memStore := memory.NewStore()
		components["database"] = memStore
		store = memStore
		log.Warn("using memory storage, operators and audit logs are lost on restart")
	}

	// Redis：登录节流，可选作为分享存储
	var redisClient *redisstore.Client
	if cfg.Redis.Address != "" {
		redisClient, err = redisstore.New(&cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		components["redis"] = redisClient
	}

	var limiter storage.RateLimitRepository
	if redisClient != nil {
		limiter = redisClient
	} else if rl, ok := store.(storage.RateLimitRepository); ok {
		limiter = rl
	} else {
		limiter = memory.NewStore()
	}

	shareRepo, err := initializeShareStorage(cfg, store, redisClient, components, &closers, log)
	if err != nil {
		log.Fatal("failed to initialize share storage", zap.Error(err))
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 远程控制面板
	pleskClient, err := plesk.New(cfg.Plesk, plesk.WithLogger(log.Named("plesk")))
	if err != nil {
		log.Fatal("failed to create plesk client", zap.Error(err))
	}
	components["plesk"] = pleskClient

	issuer, err := share.NewIssuer(shareRepo, cfg.Share, share.WithLogger(log.Named("share")))
	if err != nil {
		log.Fatal("failed to create share issuer", zap.Error(err))
	}

	// 初始化服务层
	domainCache := cache.NewLocalCache[[]plesk.Domain](5 * time.Minute)
	auditService := service.NewAuditService(store)
	provisionService := service.NewProvisionService(
		pleskClient,
		password.NewGenerator(),
		issuer,
		auditService,
		cfg.Provision,
		log.Named("provision"),
		service.WithProvisionMetrics(metrics),
		service.WithDomainCache(domainCache),
	)

	// 初始化认证服务
	userService := auth.NewService(store, limiter, log.Named("auth"))
	jwtManager := auth.NewJWTManager(&cfg.JWT)
	authService := auth.NewAuthService(userService, jwtManager)

	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
	)

	healthChecker := health.NewHealthChecker(components, log)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:           cfg,
		ProvisionService: provisionService,
		AuditService:     auditService,
		AuthService:      authService,
		UserService:      userService,
		JWTManager:       jwtManager,
		ShareIssuer:      issuer,
		Metrics:          metrics,
		Health:           healthChecker,
		Logger:           log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// 批次串行调用远程 API，写超时需要覆盖整批耗时
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 定时清理过期分享记录
	group.Go(func() error {
		log.Info("starting share cleanup task", zap.Duration("interval", shareCleanupInterval))
		return issuer.RunCleanup(groupCtx, shareCleanupInterval)
	})

	// 定时清理域名缓存
	group.Go(func() error {
		return domainCache.RunCleanup(groupCtx, cacheCleanupInterval)
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
		return
	}

	log.Info("server exited cleanly")
}

// initializeDatabaseStorage 连接主数据库并迁移操作员与审计表
func initializeDatabaseStorage(cfg *config.Config, log *zap.Logger) (*sqlstore.Store, error) {
	log.Info("initializing database storage", zap.String("database_type", cfg.Database.Type))

	store, err := sqlstore.NewStore(cfg.Database.Type, cfg.Database.DSN, sqlstore.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sql store: %w", err)
	}

	if err := store.Migrate(sqlstore.SchemaMain); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate main schema: %w", err)
	}

	log.Info("database storage initialized successfully", zap.String("database_type", cfg.Database.Type))
	return store, nil
}

// initializeShareStorage 按 share.store 选择分享记录存储
func initializeShareStorage(
	cfg *config.Config,
	mainStore storage.Store,
	redisClient *redisstore.Client,
	components map[string]storage.Pinger,
	closers *[]func(),
	log *zap.Logger,
) (storage.ShareRepository, error) {
	switch cfg.Share.Store {
	case "redis":
		log.Info("share vault backed by redis", zap.Duration("ttl", cfg.Share.TTL))
		return redisstore.NewShareStore(redisClient, cfg.Share.TTL), nil

	case "postgres":
		client, err := postgres.New(&cfg.Share.Database, log)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, client.Close)
		components["share_vault"] = client
		log.Info("share vault backed by postgres (pgx); run `migrate -schema share` before first start")
		return postgres.NewShareStore(client), nil

	case "sql":
		store, err := sqlstore.NewStore(cfg.Share.Database.Type, cfg.Share.Database.DSN, sqlstore.Options{})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, func() { _ = store.Close() })
		if err := store.Migrate(sqlstore.SchemaShare); err != nil {
			return nil, fmt.Errorf("failed to migrate share schema: %w", err)
		}
		components["share_vault"] = store
		log.Info("share vault backed by sql database", zap.String("type", cfg.Share.Database.Type))
		return store, nil

	default:
		// 未单独配置时与主存储共用
		if repo, ok := mainStore.(storage.ShareRepository); ok {
			log.Info("share vault shares the main store")
			return repo, nil
		}
		return nil, fmt.Errorf("main store does not support share records")
	}
}
