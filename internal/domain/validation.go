package domain

import (
	"errors"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidUsername  = errors.New("invalid username format")
	ErrInvalidDomain    = errors.New("invalid domain format")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
	ErrPasswordTooShort = errors.New("password too short (min 8 chars)")
	ErrPasswordTooLong  = errors.New("password too long (max 128 chars)")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// 验证常量
const (
	MaxLocalPartLength = 64  // RFC 5321 本地部分最大长度
	MaxDomainLength    = 253 // 域名最大长度

	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var (
	// 邮箱用户名只允许字母、数字、点、下划线和连字符
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

	// 域名验证（支持子域名）
	domainRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?)*$`)
)

// ValidateUsername 验证邮箱用户名（@ 之前的部分）
func ValidateUsername(username string) error {
	if len(username) > MaxLocalPartLength || !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidateDomain 验证域名格式
func ValidateDomain(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}
	if len(domain) > MaxDomainLength {
		return ErrDomainTooLong
	}
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	if strings.Contains(domain, "..") {
		return ErrInvalidDomain
	}
	return nil
}

// ValidateMailboxPassword 验证操作员手动输入的邮箱密码
func ValidateMailboxPassword(password, confirm string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}
