// Package plesk 封装 Plesk REST API 的 CLI 网关调用。
//
// 所有命令通过 POST {host}/api/v2/cli/{command}/call 执行。HTTP 状态码只表示
// 网关可达，命令是否成功由响应体中的 code 字段决定。
package plesk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mailprov/backend/internal/config"
)

const maxResponseBytes = 1 << 20

// CommandResult CLI 网关的响应
type CommandResult struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

type commandRequest struct {
	Params []string          `json:"params"`
	Env    map[string]string `json:"env,omitempty"`
}

// Domain 控制面板中托管的域名
type Domain struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	HostingType string `json:"hosting_type,omitempty"`
	GUID        string `json:"guid,omitempty"`
}

// Client Plesk API 客户端
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

// Option 配置客户端
type Option func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit 限制远程命令的发送速率，rps<=0 表示不限速
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New 根据配置创建客户端
func New(cfg config.PleskConfig, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("plesk host is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // 自签名证书的测试环境
	}

	c := &Client{
		host:   strings.TrimRight(cfg.Host, "/"),
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		log: zap.NewNop(),
	}
	WithRateLimit(cfg.RatePerSecond)(c)

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Call 执行一条 CLI 命令
//
// 非 2xx、连接失败和超时返回 *RemoteTransportError；code != 0 返回 *RemoteCommandError。
func (c *Client) Call(ctx context.Context, command string, params []string, env map[string]string) (*CommandResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &RemoteTransportError{Err: err}
		}
	}

	start := time.Now()
	var result CommandResult
	path := fmt.Sprintf("/api/v2/cli/%s/call", command)
	if err := c.do(ctx, http.MethodPost, path, commandRequest{Params: params, Env: env}, &result); err != nil {
		c.log.Warn("plesk command transport failure",
			zap.String("command", command),
			zap.String("action", firstParam(params)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	if result.Code != 0 {
		c.log.Info("plesk command returned non-zero code",
			zap.String("command", command),
			zap.String("action", firstParam(params)),
			zap.Int("code", result.Code),
			zap.Duration("duration", time.Since(start)),
		)
		return &result, &RemoteCommandError{
			Command: command,
			Code:    result.Code,
			Stderr:  result.Stderr,
		}
	}

	c.log.Debug("plesk command succeeded",
		zap.String("command", command),
		zap.String("action", firstParam(params)),
		zap.Duration("duration", time.Since(start)),
	)
	return &result, nil
}

// ListDomains 返回控制面板中的全部域名
func (c *Client) ListDomains(ctx context.Context) ([]Domain, error) {
	var domains []Domain
	if err := c.do(ctx, http.MethodGet, "/api/v2/domains", nil, &domains); err != nil {
		return nil, err
	}
	return domains, nil
}

// Ping 检查控制面板是否可达
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v2/server", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RemoteTransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &RemoteTransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteTransportError{StatusCode: resp.StatusCode, Body: excerpt(raw)}
	}

	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return &RemoteTransportError{
				StatusCode: resp.StatusCode,
				Body:       excerpt(raw),
				Err:        fmt.Errorf("decode response: %w", err),
			}
		}
	}

	return nil
}

func excerpt(raw []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(raw))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

func firstParam(params []string) string {
	if len(params) == 0 {
		return ""
	}
	return params[0]
}
