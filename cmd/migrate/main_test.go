package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlstore "mailprov/backend/internal/storage/sql"
)

type fakeMigrator struct {
	migrated []sqlstore.Schema
	err      error
	closed   bool
}

func (f *fakeMigrator) Migrate(s sqlstore.Schema) error {
	if f.err != nil {
		return f.err
	}
	f.migrated = append(f.migrated, s)
	return nil
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func run(t *testing.T, m *fakeMigrator, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(func(string, string) (migrator, error) { return m, nil }, &out)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateCommand(t *testing.T) {
	t.Run("默认只迁移主库", func(t *testing.T) {
		m := &fakeMigrator{}
		out, err := run(t, m, "--type", "mysql", "--dsn", "x")
		require.NoError(t, err)
		assert.Equal(t, []sqlstore.Schema{sqlstore.SchemaMain}, m.migrated)
		assert.True(t, m.closed)
		assert.Contains(t, out, "main")
	})

	t.Run("全部迁移", func(t *testing.T) {
		m := &fakeMigrator{}
		_, err := run(t, m, "--type", "POSTGRES", "--dsn", "x", "--schema", "all")
		require.NoError(t, err)
		assert.Equal(t, []sqlstore.Schema{sqlstore.SchemaMain, sqlstore.SchemaShare}, m.migrated)
	})

	t.Run("不支持的数据库类型", func(t *testing.T) {
		m := &fakeMigrator{}
		_, err := run(t, m, "--type", "sqlite", "--dsn", "x")
		assert.ErrorContains(t, err, "unsupported database type")
		assert.Empty(t, m.migrated)
	})

	t.Run("未知迁移范围", func(t *testing.T) {
		_, err := run(t, &fakeMigrator{}, "--type", "mysql", "--dsn", "x", "--schema", "mailboxes")
		assert.ErrorContains(t, err, "unknown schema")
	})

	t.Run("迁移失败", func(t *testing.T) {
		m := &fakeMigrator{err: errors.New("permission denied")}
		_, err := run(t, m, "--type", "mysql", "--dsn", "x", "--schema", "share")
		assert.ErrorContains(t, err, "share schema")
		assert.True(t, m.closed)
	})
}
