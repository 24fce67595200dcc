package postgres

import (
	"context"
	"encoding/base64"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/storage"
)

func newMockShareStore(t *testing.T) (*ShareStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &ShareStore{db: mock}, mock
}

func TestShareStore_SaveShare(t *testing.T) {
	ctx := context.Background()
	record := &domain.ShareRecord{
		Token:      "cafe",
		Ciphertext: []byte("cipher"),
		IV:         []byte("0123456789ab"),
		Email:      "alice@example.com",
		CreatedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	t.Run("写入 base64 编码的密文", func(t *testing.T) {
		store, mock := newMockShareStore(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO passwords")).
			WithArgs("cafe",
				base64.StdEncoding.EncodeToString([]byte("cipher")),
				base64.StdEncoding.EncodeToString([]byte("0123456789ab")),
				"alice@example.com",
				record.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, store.SaveShare(ctx, record))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("唯一约束冲突", func(t *testing.T) {
		store, mock := newMockShareStore(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO passwords")).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		assert.ErrorIs(t, store.SaveShare(ctx, record), storage.ErrShareExists)
	})
}

func TestShareStore_ConsumeShare(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	columns := []string{"password", "iv", "email", "created_at"}

	t.Run("删除并返回记录", func(t *testing.T) {
		store, mock := newMockShareStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM passwords WHERE link_hash = $1 RETURNING")).
			WithArgs("cafe").
			WillReturnRows(pgxmock.NewRows(columns).AddRow(
				base64.StdEncoding.EncodeToString([]byte("cipher")),
				base64.StdEncoding.EncodeToString([]byte("0123456789ab")),
				"alice@example.com",
				created,
			))

		record, err := store.ConsumeShare(ctx, "cafe")
		require.NoError(t, err)
		assert.Equal(t, []byte("cipher"), record.Ciphertext)
		assert.Equal(t, []byte("0123456789ab"), record.IV)
		assert.True(t, record.Consumed)
	})

	t.Run("已被取回", func(t *testing.T) {
		store, mock := newMockShareStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM passwords")).
			WithArgs("cafe").
			WillReturnRows(pgxmock.NewRows(columns))

		_, err := store.ConsumeShare(ctx, "cafe")
		assert.ErrorIs(t, err, storage.ErrShareNotFound)
	})
}

func TestShareStore_PurgeSharesBefore(t *testing.T) {
	store, mock := newMockShareStore(t)
	cutoff := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM passwords WHERE created_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	removed, err := store.PurgeSharesBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}
