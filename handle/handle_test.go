package handle

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type something struct {
	ID   int    `db:"id"`
	Name string `db:"name"`
}

func newMockHandle(t *testing.T, opts ...Option) (*Handle, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return New(sqlx.NewDb(mockDB, "sqlmock"), opts...), mock
}

func TestGetScansSingleRow(t *testing.T) {
	h, mock := newMockHandle(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM something WHERE id = ?")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "seven"))

	var got something
	err := h.Get(context.Background(), &got, "SELECT id, name FROM something WHERE id = ?", 7)
	require.NoError(t, err)
	assert.Equal(t, something{ID: 7, Name: "seven"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsErrNoRows(t *testing.T) {
	h, mock := newMockHandle(t)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	var got something
	err := h.Get(context.Background(), &got, "SELECT id, name FROM something WHERE id = ?", 404)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSelectScansAllRows(t *testing.T) {
	h, mock := newMockHandle(t)

	mock.ExpectQuery("SELECT id, name FROM something").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "one").
			AddRow(2, "two"))

	var got []something
	err := h.Select(context.Background(), &got, "SELECT id, name FROM something ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []something{{1, "one"}, {2, "two"}}, got)
}

func TestNamedExecBindsStructFields(t *testing.T) {
	h, mock := newMockHandle(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO something (id, name) VALUES (?, ?)")).
		WithArgs(1, "one").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := h.NamedExec(context.Background(), "INSERT INTO something (id, name) VALUES (:id, :name)", something{ID: 1, Name: "one"})
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNamedGetScansStructAndScalar(t *testing.T) {
	h, mock := newMockHandle(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM something WHERE id = ?")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(3, "three"))

	var got something
	err := h.NamedGet(context.Background(), &got, "SELECT id, name FROM something WHERE id = :id", map[string]any{"id": 3})
	require.NoError(t, err)
	assert.Equal(t, something{ID: 3, Name: "three"}, got)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM something WHERE name = ?")).
		WithArgs("three").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	var count int64
	err = h.NamedGet(context.Background(), &count, "SELECT count(*) FROM something WHERE name = :name", map[string]any{"name": "three"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNamedGetReturnsErrNoRows(t *testing.T) {
	h, mock := newMockHandle(t)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	var got something
	err := h.NamedGet(context.Background(), &got, "SELECT id, name FROM something WHERE id = :id", map[string]any{"id": 404})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestNamedSelectScansAllRows(t *testing.T) {
	h, mock := newMockHandle(t)

	mock.ExpectQuery("SELECT id, name FROM something").
		WithArgs("o%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "one").
			AddRow(8, "octo"))

	var got []something
	err := h.NamedSelect(context.Background(), &got, "SELECT id, name FROM something WHERE name LIKE :pattern", map[string]any{"pattern": "o%"})
	require.NoError(t, err)
	assert.Equal(t, []something{{1, "one"}, {8, "octo"}}, got)
}

func TestNamedBatchExecutesPerRecord(t *testing.T) {
	h, mock := newMockHandle(t)

	mock.ExpectExec("INSERT INTO something").WithArgs(1, "one").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO something").WithArgs(2, "two").WillReturnResult(sqlmock.NewResult(0, 1))

	counts, err := h.NamedBatch(context.Background(), "INSERT INTO something (id, name) VALUES (:id, :name)", []any{
		something{ID: 1, Name: "one"},
		something{ID: 2, Name: "two"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseIsIdempotentAndRollsBackOpenTransaction(t *testing.T) {
	h, mock := newMockHandle(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	require.NoError(t, h.Begin(context.Background()))
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.True(t, h.Closed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClosedHandleRejectsStatements(t *testing.T) {
	h, _ := newMockHandle(t)
	require.NoError(t, h.Close())

	var got something
	assert.ErrorIs(t, h.Get(context.Background(), &got, "SELECT 1"), ErrHandleClosed)
	assert.ErrorIs(t, h.Select(context.Background(), &[]something{}, "SELECT 1"), ErrHandleClosed)
	_, err := h.Exec(context.Background(), "DELETE FROM something")
	assert.ErrorIs(t, err, ErrHandleClosed)
	_, err = h.NamedExec(context.Background(), "DELETE FROM something", map[string]any{})
	assert.ErrorIs(t, err, ErrHandleClosed)
}
