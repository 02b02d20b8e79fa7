package token

import (
	"context"
	"database/sql"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoproof/ecoproof/pkg/contracts"

	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *SQLStorage {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewSQLStorage(db)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestSQLStorage_LedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	l := NewLedger(s)

	require.NoError(t, l.Mint(ctx, []Credit{{"alice", 90}, {"reserve", 10}, {"alice", 5}}))
	require.NoError(t, l.Transfer(ctx, "alice", "escrow", 40))

	err := l.Transfer(ctx, "alice", "escrow", 56)
	assert.ErrorIs(t, err, contracts.KindInsufficientBalance)
	err = l.Transfer(ctx, "nobody", "escrow", 1)
	assert.ErrorIs(t, err, contracts.KindInsufficientBalance)

	for account, want := range map[string]uint64{"alice": 55, "escrow": 40, "reserve": 10, "nobody": 0} {
		got, err := l.BalanceOf(ctx, account)
		require.NoError(t, err)
		assert.Equal(t, want, got, account)
	}
	supply, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(105), supply)
}

func TestSQLStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	s := NewSQLStorage(db)
	require.NoError(t, s.Init(ctx))
	const big = uint64(1)<<53 + 1
	require.NoError(t, s.Mint(ctx, []Credit{{"alice", big}}))
	require.NoError(t, db.Close())

	db, err = sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s = NewSQLStorage(db)
	require.NoError(t, s.Init(ctx))

	bal, err := s.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, big, bal)
	supply, err := s.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, big, supply)
}

func TestSQLStorage_MintIsTransactional(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQLStorage(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_balances")).
		WithArgs("alice", int64(95)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_balances")).
		WithArgs("reserve", int64(10)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_supply")).
		WithArgs(int64(105)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = s.Mint(context.Background(), []Credit{{"reserve", 10}, {"alice", 90}, {"alice", 5}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorage_MintRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQLStorage(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_balances")).
		WithArgs("alice", int64(7)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_supply")).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err = s.Mint(context.Background(), []Credit{{"alice", 7}})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorage_TransferShortSourceRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQLStorage(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE token_balances")).
		WithArgs(int64(50), "alice").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = s.Transfer(context.Background(), "alice", "escrow", 50)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorage_Reads(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQLStorage(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM token_balances WHERE account = $1")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(750))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT total FROM token_supply WHERE id = 1")).
		WillReturnError(sql.ErrNoRows)

	bal, err := s.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(750), bal)
	supply, err := s.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Zero(t, supply)
	assert.NoError(t, mock.ExpectationsWereMet())
}
