package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailprov/backend/internal/storage"
	"mailprov/backend/internal/storage/memory"
)

func memoryOpener(store *memory.Store, calls *int) openFunc {
	return func(dbType, dsn string) (storage.UserRepository, func() error, error) {
		*calls++
		return store, func() error { return nil }, nil
	}
}

func TestCreateAdminCommand(t *testing.T) {
	t.Run("创建管理员", func(t *testing.T) {
		store := memory.NewStore()
		calls := 0
		var out bytes.Buffer

		cmd := newRootCommand(memoryOpener(store, &calls), &out)
		cmd.SetArgs([]string{"--email", "Root@Example.com", "--password", "Password123", "--db-type", "mysql", "--dsn", "user:pass@tcp(localhost:3306)/mailprov"})
		require.NoError(t, cmd.Execute())

		assert.Equal(t, 1, calls)
		assert.Contains(t, out.String(), "root@example.com")

		user, err := store.GetUserByEmail(context.Background(), "root@example.com")
		require.NoError(t, err)
		assert.True(t, user.IsAdmin)
		assert.True(t, user.IsActive)
	})

	t.Run("普通操作员", func(t *testing.T) {
		store := memory.NewStore()
		calls := 0
		cmd := newRootCommand(memoryOpener(store, &calls), &bytes.Buffer{})
		cmd.SetArgs([]string{"--email", "op@example.com", "--password", "Password123", "--admin=false", "--db-type", "postgres", "--dsn", "postgres://localhost/mailprov"})
		require.NoError(t, cmd.Execute())

		user, err := store.GetUserByEmail(context.Background(), "op@example.com")
		require.NoError(t, err)
		assert.False(t, user.IsAdmin)
	})

	t.Run("缺少数据库配置", func(t *testing.T) {
		t.Setenv("MAILPROV_DATABASE_TYPE", "")
		t.Setenv("MAILPROV_DATABASE_DSN", "")
		calls := 0
		cmd := newRootCommand(memoryOpener(memory.NewStore(), &calls), &bytes.Buffer{})
		cmd.SetArgs([]string{"--email", "op@example.com", "--password", "Password123"})
		cmd.SetErr(&bytes.Buffer{})
		assert.Error(t, cmd.Execute())
		assert.Zero(t, calls)
	})

	t.Run("数据库连接失败", func(t *testing.T) {
		failing := func(string, string) (storage.UserRepository, func() error, error) {
			return nil, nil, errors.New("connection refused")
		}
		cmd := newRootCommand(failing, &bytes.Buffer{})
		cmd.SetArgs([]string{"--email", "op@example.com", "--password", "Password123", "--db-type", "mysql", "--dsn", "x"})
		cmd.SetErr(&bytes.Buffer{})
		assert.ErrorContains(t, cmd.Execute(), "connection refused")
	})

	t.Run("密码过短", func(t *testing.T) {
		calls := 0
		cmd := newRootCommand(memoryOpener(memory.NewStore(), &calls), &bytes.Buffer{})
		cmd.SetArgs([]string{"--email", "op@example.com", "--password", "short", "--db-type", "mysql", "--dsn", "x"})
		cmd.SetErr(&bytes.Buffer{})
		assert.Error(t, cmd.Execute())
	})
}
