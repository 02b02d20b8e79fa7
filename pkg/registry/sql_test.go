package registry

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

func TestSQLBackend_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	at := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectExec("INSERT INTO reference_entries").
		WithArgs(methodology.String(), "VM0042", "1.0.0", "ipfs://m", 1, at.UnixNano()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewSQLBackend(db).Put(context.Background(), contracts.Reference{
		ID: methodology, Name: "VM0042", Version: "1.0.0", ContentRef: "ipfs://m", Active: true, UpdatedAt: at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackend_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	query := regexp.QuoteMeta(`FROM reference_entries WHERE id = $1`)
	mock.ExpectQuery(query).WithArgs(methodology.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "version", "content_ref", "active", "updated_at"}).
			AddRow(methodology.String(), "VM0042", "1.0.0", "", int64(1), int64(0)))
	mock.ExpectQuery(query).WithArgs(baseline.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "version", "content_ref", "active", "updated_at"}))

	b := NewSQLBackend(db)
	ref, err := b.Get(context.Background(), methodology)
	require.NoError(t, err)
	assert.Equal(t, methodology, ref.ID)
	assert.True(t, ref.Active)

	_, err = b.Get(context.Background(), baseline)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
