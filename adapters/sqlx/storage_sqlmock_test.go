package sqlx_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	storage "cyberlevels/adapters/sqlx"
	"cyberlevels/levels"
)

func newMockStore(t *testing.T) (*storage.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	xdb := storage.NewWithDB(libsqlx.NewDb(db, "postgres"), storage.DriverPostgres, "")
	cleanup := func() {
		_ = db.Close()
	}
	return xdb, mock, cleanup
}

func TestSQLMock_Save_Upsert(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO players`).
		WithArgs("p1", "steve", "Steve!", int64(7), "42.5", int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Save(context.Background(), levels.Snapshot{
		ID: "p1", Name: "steve", DisplayName: "Steve!", Level: 7, Exp: "42.5", HighestRewarded: 7,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Load_Found(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	cols := []string{"uuid", "name", "display_name", "level", "exp", "max_level_reward", "updated_at"}
	mock.ExpectQuery(`SELECT uuid, name, display_name, level, exp, max_level_reward, updated_at FROM players WHERE uuid`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("p1", "steve", "", int64(7), "42.5", int64(7), time.Now()))

	snap, found, err := store.Load(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(7), snap.Level)
	require.Equal(t, "42.5", snap.Exp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Load_Missing(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT uuid, name, display_name, level, exp, max_level_reward, updated_at FROM players WHERE uuid`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, found, err := store.Load(context.Background(), "ghost")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_SaveAll_Transaction(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO players`).
		WithArgs("a", "", "", int64(1), "0", int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO players`).
		WithArgs("b", "", "", int64(2), "10", int64(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.SaveAll(context.Background(), []levels.Snapshot{
		{ID: "a", Level: 1, Exp: "0", HighestRewarded: 1},
		{ID: "b", Level: 2, Exp: "10", HighestRewarded: 2},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_SaveAll_RollbackOnFailure(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO players`).
		WithArgs("a", "", "", int64(1), "0", int64(1), sqlmock.AnyArg()).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := store.SaveAll(context.Background(), []levels.Snapshot{
		{ID: "a", Level: 1, Exp: "0", HighestRewarded: 1},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Delete(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM players WHERE uuid`).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), "p1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_LoadAll(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	cols := []string{"uuid", "name", "display_name", "level", "exp", "max_level_reward", "updated_at"}
	mock.ExpectQuery(`SELECT uuid, name, display_name, level, exp, max_level_reward, updated_at FROM players`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a", "alice", "", int64(3), "10", int64(3), time.Now()).
			AddRow("b", "bob", "", int64(5), "0", int64(5), time.Now()))

	all, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Migrate(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS players`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
