package plesk

import (
	"context"
	"strconv"
	"strings"
)

const mailCommand = "mail"

// CreateArgs 构造 `plesk bin mail --create` 的参数，可选策略为空时省略对应参数
func CreateArgs(email, password string, quotaPolicy *string, outgoingLimitPolicy *int) []string {
	args := []string{
		"--create", email,
		"-passwd", password,
		"-mailbox", "true",
	}
	if quotaPolicy != nil && *quotaPolicy != "" {
		args = append(args, "-mbox_quota", *quotaPolicy)
	}
	if outgoingLimitPolicy != nil {
		args = append(args, "-outgoing-messages-mbox-limit", strconv.Itoa(*outgoingLimitPolicy))
	}
	return args
}

// CreateMailbox 在远程创建邮箱
func (c *Client) CreateMailbox(ctx context.Context, email, password string, quotaPolicy *string, outgoingLimitPolicy *int) (*CommandResult, error) {
	return c.Call(ctx, mailCommand, CreateArgs(email, password, quotaPolicy, outgoingLimitPolicy), nil)
}

// ListMailboxes 列出域名下已存在的邮箱，地址统一转为小写
func (c *Client) ListMailboxes(ctx context.Context, domain string) ([]string, error) {
	result, err := c.Call(ctx, mailCommand, []string{"--list", domain}, nil)
	if err != nil {
		return nil, err
	}
	return ParseMailboxList(result.Stdout), nil
}

// DeleteMailbox 删除远程邮箱
func (c *Client) DeleteMailbox(ctx context.Context, email string) error {
	_, err := c.Call(ctx, mailCommand, []string{"--remove", email}, nil)
	return err
}

// ParseMailboxList 解析 --list 的输出，每行一个地址，忽略空行和不含 @ 的行
//
// 部分 Plesk 版本会在地址前输出类型列（如 "Mail name  info@example.com"），
// 此时取包含 @ 的字段。
func ParseMailboxList(stdout string) []string {
	lines := strings.Split(stdout, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "@") {
			continue
		}
		for _, field := range strings.Fields(line) {
			if strings.Contains(field, "@") {
				out = append(out, strings.ToLower(field))
				break
			}
		}
	}
	return out
}
