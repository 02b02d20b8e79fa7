package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_CreateActionRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(id), 0) FROM actions`)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO actions").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = NewSQLStore(db).CreateAction(context.Background(), sampleAction("alice"))
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CreateActionAssignsNextID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(id), 0) FROM actions`)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO actions").
		WillReturnResult(sqlmock.NewResult(8, 1))
	mock.ExpectCommit()

	id, err := NewSQLStore(db).CreateAction(context.Background(), sampleAction("alice"))
	require.NoError(t, err)
	assert.Equal(t, uint64(8), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpdateChallengeNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("UPDATE challenges SET").
		WithArgs(int64(1), int64(0), sqlmock.AnyArg(), "admin", int64(3), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewSQLStore(db).UpdateChallenge(context.Background(), &contracts.Challenge{
		ActionID: 3, Index: 4, Resolved: true, ResolvedBy: "admin",
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
