package tx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE submissions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = Run(context.Background(), db, func(ctx context.Context, _ *sql.Tx) error {
			_, err := Conn(ctx, db).ExecContext(ctx, "UPDATE submissions SET status = 'approved'")
			return err
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = Run(context.Background(), db, func(context.Context, *sql.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("joins an ambient transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		outer, err := db.Begin()
		require.NoError(t, err)

		var inner *sql.Tx
		err = Run(WithTx(context.Background(), outer), db, func(_ context.Context, stx *sql.Tx) error {
			inner = stx
			return nil
		})
		require.NoError(t, err)
		assert.Same(t, outer, inner)
		require.NoError(t, mock.ExpectationsWereMet(), "no second begin or commit")
	})
}

func TestConn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, Querier(db), Conn(context.Background(), db))

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	assert.Equal(t, Querier(tx), Conn(WithTx(context.Background(), tx), db))
	assert.Equal(t, context.Background(), WithTx(context.Background(), nil))
}
