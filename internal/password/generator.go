// Package password 生成满足字符类别组合规则的邮箱密码。
package password

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits    = "0123456789"
	symbols   = "!@#$%^&*()-_=+"

	// MinLength 允许生成的最短密码
	MinLength = 8
)

var alphabet = lowercase + uppercase + digits + symbols

// ErrPasswordTooShort 请求的长度小于 MinLength
var ErrPasswordTooShort = errors.New("password length must be at least 8")

// Generator 基于加密安全随机源生成密码
type Generator struct {
	random io.Reader
}

// NewGenerator 使用 crypto/rand 创建密码生成器
func NewGenerator() *Generator {
	return &Generator{random: rand.Reader}
}

// NewGeneratorWithReader 使用指定随机源创建生成器（测试用）
func NewGeneratorWithReader(r io.Reader) *Generator {
	return &Generator{random: r}
}

// Generate 生成指定长度的密码
//
// 结果至少包含一个小写字母、一个大写字母、一个数字和一个符号，
// 其余字符从完整字母表均匀抽取，最后整体随机打乱。
func (g *Generator) Generate(length int) (string, error) {
	if length < MinLength {
		return "", ErrPasswordTooShort
	}

	out := make([]byte, 0, length)
	for _, class := range []string{lowercase, uppercase, digits, symbols} {
		c, err := g.pick(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	for len(out) < length {
		c, err := g.pick(alphabet)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates
	for i := len(out) - 1; i > 0; i-- {
		j, err := g.intn(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}

	return string(out), nil
}

func (g *Generator) pick(set string) (byte, error) {
	idx, err := g.intn(len(set))
	if err != nil {
		return 0, err
	}
	return set[idx], nil
}

// intn 返回 [0, n) 内的均匀随机数
func (g *Generator) intn(n int) (int, error) {
	v, err := rand.Int(g.random, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random source: %w", err)
	}
	return int(v.Int64()), nil
}
