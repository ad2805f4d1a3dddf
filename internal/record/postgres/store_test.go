package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return &Store{BaseStore: NewBaseStore(sqlxDB)}, mock
}

func TestEnsureTableCreatesWhenAbsent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").WithArgs("readings").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS readings").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	mig, err := store.EnsureTable(context.Background(), "readings", nil)
	require.NoError(t, err)
	require.True(t, mig.TableCreated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureTableRejectsInvalidName(t *testing.T) {
	store, _ := newMockStore(t)
	_, err := store.EnsureTable(context.Background(), "bad;name", nil)
	require.Error(t, err)
}

func TestInsertBuildsPositionalInsert(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO readings").WillReturnResult(sqlmock.NewResult(1, 1))

	rec, err := store.Insert(context.Background(), "readings", testRecord("r1"))
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE readings").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.Update(context.Background(), "readings", "missing", map[string]any{"name": "x"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func testRecord(name string) record.Record {
	return record.Record{Name: name, Date: testDate()}
}

func testDate() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
