package httptransport

import (
	"errors"
	"net/http"

	"mailprov/backend/internal/auth"
	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/plesk"
	"mailprov/backend/internal/service"
	"mailprov/backend/internal/share"
)

// errorMapping 业务错误 -> HTTP 状态码与中文消息
type errorMapping struct {
	err    error
	status int
	msg    string
}

// 按顺序匹配，包装过的错误也能命中
var errorMappings = []errorMapping{
	// 批次错误
	{service.ErrActorRequired, http.StatusUnauthorized, MsgAuthRequired},
	{service.ErrDomainRequired, http.StatusBadRequest, "请选择域名"},
	{service.ErrDomainNotAllowed, http.StatusBadRequest, "域名不在允许列表中"},
	{service.ErrBatchTooLarge, http.StatusBadRequest, "用户名数量超过单批次上限"},
	{service.ErrNoUsernames, http.StatusBadRequest, "请至少输入一个用户名"},
	{service.ErrInvalidEmail, http.StatusBadRequest, "邮箱地址格式无效"},

	// 输入校验
	{domain.ErrInvalidUsername, http.StatusBadRequest, "用户名格式无效，只允许字母、数字、点、下划线和连字符"},
	{domain.ErrInvalidDomain, http.StatusBadRequest, "域名格式无效"},
	{domain.ErrDomainTooLong, http.StatusBadRequest, "域名过长"},
	{domain.ErrPasswordTooShort, http.StatusBadRequest, "密码至少需要 8 个字符"},
	{domain.ErrPasswordTooLong, http.StatusBadRequest, "密码过长"},
	{domain.ErrPasswordMismatch, http.StatusBadRequest, "两次输入的密码不一致"},

	// 认证
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, MsgInvalidCredentials},
	{auth.ErrUserInactive, http.StatusForbidden, "账户已被禁用"},
	{auth.ErrTooManyAttempts, http.StatusTooManyRequests, "登录失败次数过多，请稍后再试"},
	{auth.ErrInvalidEmail, http.StatusBadRequest, "邮箱格式无效"},
	{auth.ErrInvalidPassword, http.StatusBadRequest, "密码长度需在 8 到 72 个字符之间"},
	{auth.ErrEmailExists, http.StatusConflict, "该邮箱已被注册"},
	{auth.ErrUserNotFound, http.StatusNotFound, MsgUserNotFound},

	// 分享链接
	{share.ErrShareNotFound, http.StatusNotFound, "链接无效、已被使用或已过期"},
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	_, msg := classifyError(err)
	return msg
}

// classifyError 返回错误对应的状态码和消息，未识别的错误返回 500
func classifyError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.msg
		}
	}

	// 远程命令失败：原样返回 stderr
	var cmdErr *plesk.RemoteCommandError
	if errors.As(err, &cmdErr) {
		return http.StatusUnprocessableEntity, cmdErr.Error()
	}
	if plesk.IsTransportError(err) {
		return http.StatusBadGateway, MsgRemoteUnavailable
	}

	return http.StatusInternalServerError, MsgInternalError
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"
	MsgFieldsRequired = "所有字段均为必填项"
	MsgInvalidLimit   = "limit 参数无效"

	// 认证相关
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "邮箱或密码错误"
	MsgUserNotFound       = "用户不存在"

	// 远程控制面板
	MsgRemoteUnavailable = "远程控制面板暂时不可用，请稍后重试"

	// 邮箱相关
	MsgMailboxCreateFailed = "创建邮箱失败"
	MsgMailboxListFailed   = "获取邮箱列表失败"
	MsgMailboxDeleteFailed = "删除邮箱失败"
	MsgDomainListFailed    = "获取域名列表失败"

	// 审计日志
	MsgLogListFailed = "获取操作记录失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
