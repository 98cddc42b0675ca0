package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewWithConn(conn), mock
}

func TestStorageErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	t.Run("enabled pairs query failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("SELECT w.chat_id").WillReturnError(boom)

		_, err := db.EnabledPairs(ctx)
		var serr *models.StorageError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, "enabled pairs", serr.Op)
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("add rolls back on insert failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT enabled FROM watchlist_entries").WillReturnRows(sqlmock.NewRows([]string{"enabled"}))
		mock.ExpectExec("INSERT INTO watchlist_entries").WillReturnError(boom)
		mock.ExpectRollback()

		_, err := db.AddTicker(ctx, 1, "AAPL")
		var serr *models.StorageError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, "add ticker", serr.Op)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fingerprint insert failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("INSERT INTO sent_fingerprints").WillReturnError(boom)

		ok, err := db.CheckAndInsert(ctx, "fp", time.Now())
		assert.False(t, ok)
		var serr *models.StorageError
		assert.True(t, errors.As(err, &serr))
	})

	t.Run("record observation failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("UPDATE watchlist_entries").WillReturnError(boom)

		err := db.RecordObservation(ctx, 1, "AAPL", decimal.NewFromInt(10), "")
		var serr *models.StorageError
		assert.True(t, errors.As(err, &serr))
	})

	t.Run("invalid interval never reaches the database", func(t *testing.T) {
		db, mock := newMockDB(t)

		err := db.SetGlobalInterval(ctx, 0)
		var verr *models.ValidationError
		assert.True(t, errors.As(err, &verr))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
