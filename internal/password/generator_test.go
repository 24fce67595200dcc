package password

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestGenerator_Generate(t *testing.T) {
	g := NewGenerator()

	t.Run("每种长度都包含四类字符", func(t *testing.T) {
		for length := MinLength; length <= 64; length++ {
			for i := 0; i < 20; i++ {
				pw, err := g.Generate(length)
				require.NoError(t, err)
				assert.Len(t, pw, length)
				assert.True(t, strings.ContainsAny(pw, lowercase), pw)
				assert.True(t, strings.ContainsAny(pw, uppercase), pw)
				assert.True(t, strings.ContainsAny(pw, digits), pw)
				assert.True(t, strings.ContainsAny(pw, symbols), pw)
			}
		}
	})

	t.Run("只使用字母表内的字符", func(t *testing.T) {
		pw, err := g.Generate(128)
		require.NoError(t, err)
		for _, r := range pw {
			assert.Contains(t, alphabet, string(r))
		}
	})

	t.Run("长度不足时返回错误", func(t *testing.T) {
		_, err := g.Generate(7)
		assert.ErrorIs(t, err, ErrPasswordTooShort)
	})

	t.Run("连续生成结果不同", func(t *testing.T) {
		seen := make(map[string]struct{})
		for i := 0; i < 100; i++ {
			pw, err := g.Generate(16)
			require.NoError(t, err)
			seen[pw] = struct{}{}
		}
		assert.Len(t, seen, 100)
	})

	t.Run("随机源失败时返回错误", func(t *testing.T) {
		_, err := NewGeneratorWithReader(failingReader{}).Generate(12)
		assert.ErrorContains(t, err, "entropy exhausted")
	})
}
