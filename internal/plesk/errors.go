package plesk

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey 未配置 API Key
var ErrMissingAPIKey = errors.New("plesk API key is required")

// DefaultCommandError 远程命令失败但 stderr 为空时使用的消息
const DefaultCommandError = "unknown remote error"

// RemoteTransportError 远程 API 不可达、超时或返回非 2xx 状态码
type RemoteTransportError struct {
	StatusCode int    // HTTP 状态码，连接失败时为 0
	Body       string // 响应体摘要
	Err        error  // 底层错误
}

func (e *RemoteTransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("plesk transport error: HTTP %d: %v", e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("plesk transport error: %v", e.Err)
	case e.Body != "":
		return fmt.Sprintf("plesk transport error: HTTP %d: %s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("plesk transport error: HTTP %d", e.StatusCode)
	}
}

func (e *RemoteTransportError) Unwrap() error {
	return e.Err
}

// RemoteCommandError 远程 API 可达，但命令返回了非零 code
//
// Error() 直接返回命令的 stderr，便于原样展示给操作员。
type RemoteCommandError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *RemoteCommandError) Error() string {
	if e.Stderr == "" {
		return DefaultCommandError
	}
	return e.Stderr
}

// IsTransportError 判断错误链中是否包含传输错误
func IsTransportError(err error) bool {
	var te *RemoteTransportError
	return errors.As(err, &te)
}

// IsCommandError 判断错误链中是否包含命令错误
func IsCommandError(err error) bool {
	var ce *RemoteCommandError
	return errors.As(err, &ce)
}
