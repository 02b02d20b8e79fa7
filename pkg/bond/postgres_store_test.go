package bond

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStorage_Balance(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	store := NewPostgresStorage(db)
	ctx := context.Background()
	query := regexp.QuoteMeta("SELECT balance FROM bond_balances WHERE book = $1 AND account = $2")

	mock.ExpectQuery(query).
		WithArgs("native", "alice").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(750))

	bal, err := store.Balance(ctx, BookNative, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(750), bal)

	mock.ExpectQuery(query).
		WithArgs("stake", "bob").
		WillReturnError(sql.ErrNoRows)

	bal, err = store.Balance(ctx, BookStake, "bob")
	require.NoError(t, err)
	assert.Zero(t, bal)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_SetBalancesIsTransactional(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := NewPostgresStorage(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bond_balances")).
		WithArgs("native", "challenger", int64(400)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bond_balances")).
		WithArgs("native", "verifier", int64(600)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = store.SetBalances(ctx, BookNative, map[string]uint64{"verifier": 600, "challenger": 400})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_SetBalancesRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := NewPostgresStorage(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bond_balances")).
		WithArgs("native", "alice", int64(1)).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err = store.SetBalances(context.Background(), BookNative, map[string]uint64{"alice": 1})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
