package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{
		{"id-1", "example.com", 0.92},
		{"id-2", "acme.io", 0.78},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_records"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_records"}, []string{"id", "domain", "confidence"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "records" .+ ON CONFLICT \("id"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "records",
		Columns:      []string{"id", "domain", "confidence"},
		ConflictKeys: []string{"id"},
	}, rows)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "records",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	}, nil)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_ValidatesConfig(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{{"id-1"}}

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "records",
		ConflictKeys: []string{"id"},
	}, rows)
	assert.ErrorContains(t, err, "no columns")

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:   "records",
		Columns: []string{"id"},
	}, rows)
	assert.ErrorContains(t, err, "no conflict keys")
}

func TestBulkUpsert_RollsBackOnCopyError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_records"}, []string{"id", "domain"}).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "records",
		Columns:      []string{"id", "domain"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"id-1", "example.com"}})

	assert.ErrorContains(t, err, "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"records"`, sanitizeTable("records"))
	assert.Equal(t, `"audit"."records"`, sanitizeTable("audit.records"))
}
