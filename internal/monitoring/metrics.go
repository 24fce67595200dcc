package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 开通指标
	ProvisionBatches  prometheus.Counter
	ProvisionOutcomes *prometheus.CounterVec
	RemoteCommands    *prometheus.HistogramVec

	// 分享链接指标
	ShareLinksIssued    *prometheus.CounterVec
	ShareLinksRetrieved *prometheus.CounterVec

	// 认证指标
	LoginAttempts *prometheus.CounterVec

	// 系统指标
	SystemUptime prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics 在默认注册表上创建监控指标
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWithRegistry 在指定注册表上创建监控指标，测试中可传入独立的 prometheus.NewRegistry()
func NewMetricsWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP 请求指标
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailprov_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailprov_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		// 开通指标
		ProvisionBatches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailprov_provision_batches_total",
				Help: "Total number of provisioning batches processed",
			},
		),

		ProvisionOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailprov_provision_outcomes_total",
				Help: "Mailbox provisioning outcomes by status",
			},
			[]string{"status"},
		),

		RemoteCommands: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailprov_remote_command_duration_seconds",
				Help:    "Duration of remote control panel commands",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"action", "result"},
		),

		// 分享链接指标
		ShareLinksIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailprov_share_links_issued_total",
				Help: "Share link issuance attempts by result",
			},
			[]string{"result"},
		),

		ShareLinksRetrieved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailprov_share_links_retrieved_total",
				Help: "Share link retrieval attempts by result",
			},
			[]string{"result"},
		),

		// 认证指标
		LoginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailprov_login_attempts_total",
				Help: "Operator login attempts by result",
			},
			[]string{"result"},
		),

		// 系统指标
		SystemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailprov_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),

		// 错误指标
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailprov_errors_total",
				Help: "Total number of errors",
			},
			[]string{"error_type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailprov_panics_total",
				Help: "Total number of panics",
			},
		),

		// 限流指标
		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailprov_rate_limit_blocks_total",
				Help: "Total number of requests blocked by rate limiting",
			},
			[]string{"limit_type"},
		),

		gatherer: gatherer,
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordBatch 记录一个已处理的批次
func (m *Metrics) RecordBatch() {
	m.ProvisionBatches.Inc()
}

// RecordProvisionOutcome 记录单个邮箱的开通结果
func (m *Metrics) RecordProvisionOutcome(status string) {
	m.ProvisionOutcomes.WithLabelValues(status).Inc()
}

// RecordRemoteCommand 记录远程命令耗时
func (m *Metrics) RecordRemoteCommand(action, result string, duration time.Duration) {
	m.RemoteCommands.WithLabelValues(action, result).Observe(duration.Seconds())
}

// RecordShareIssued 记录分享链接签发
func (m *Metrics) RecordShareIssued(result string) {
	m.ShareLinksIssued.WithLabelValues(result).Inc()
}

// RecordShareRetrieved 记录分享链接取回
func (m *Metrics) RecordShareRetrieved(result string) {
	m.ShareLinksRetrieved.WithLabelValues(result).Inc()
}

// RecordLogin 记录登录尝试
func (m *Metrics) RecordLogin(result string) {
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	m.SystemUptime.Set(uptime.Seconds())
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
