package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"mailprov/backend/internal/storage"
)

const (
	checkTimeout       = 5 * time.Second
	maxGoroutines      = 1000
	StatusOK           = "OK"
	statusErrorPattern = "ERROR: %v"
)

// HealthChecker 健康检查器
//
// 存活检查只看进程自身；就绪检查探测主数据库、分享存储、Redis 和远程控制面板。
type HealthChecker struct {
	health     healthcheck.Handler
	components map[string]storage.Pinger
	logger     *zap.Logger
}

// NewHealthChecker 创建健康检查器，components 的键为组件名
func NewHealthChecker(components map[string]storage.Pinger, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health:     healthcheck.NewHandler(),
		components: components,
		logger:     logger,
	}

	// 添加健康检查
	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))

	for name, pinger := range hc.components {
		hc.health.AddReadinessCheck(name, healthcheck.Timeout(PingCheck(pinger), checkTimeout))
	}
}

// Handler 返回健康检查处理器，提供 /live 和 /ready
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveHandler 存活检查
func (hc *HealthChecker) LiveHandler() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyHandler 就绪检查
func (hc *HealthChecker) ReadyHandler() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}

// CheckHealth 执行全部组件检查并返回可读结果
func (hc *HealthChecker) CheckHealth(ctx context.Context) map[string]string {
	names := make([]string, 0, len(hc.components))
	for name := range hc.components {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names)+1)
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := hc.components[name].Ping(checkCtx)
		cancel()

		if err != nil {
			hc.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
			results[name] = fmt.Sprintf(statusErrorPattern, err)
		} else {
			results[name] = StatusOK
		}
	}
	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}

// PingCheck 把可 Ping 的组件包装为 healthcheck.Check
func PingCheck(p storage.Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		return p.Ping(ctx)
	}
}
