package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

// SQLStorage implements Storage using database/sql. It works with both
// Postgres and SQLite.
type SQLStorage struct {
	db *sql.DB
}

func NewSQLStorage(db *sql.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

const sqlTokenSchema = `
CREATE TABLE IF NOT EXISTS token_balances (
	account TEXT PRIMARY KEY,
	balance BIGINT NOT NULL CHECK (balance >= 0)
);
CREATE TABLE IF NOT EXISTS token_supply (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	total BIGINT NOT NULL CHECK (total >= 0)
);
`

// Init creates the balance and supply tables.
func (s *SQLStorage) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqlTokenSchema)
	return err
}

func (s *SQLStorage) Balance(ctx context.Context, account string) (uint64, error) {
	return s.scalar(ctx, "SELECT balance FROM token_balances WHERE account = $1", account)
}

func (s *SQLStorage) TotalSupply(ctx context.Context) (uint64, error) {
	return s.scalar(ctx, "SELECT total FROM token_supply WHERE id = 1")
}

// scalar reads one BIGINT; a missing row reads as zero.
func (s *SQLStorage) scalar(ctx context.Context, query string, args ...any) (uint64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read token state: %w", err)
	}
	return uint64(v), nil
}

const (
	creditBalance = `
		INSERT INTO token_balances (account, balance)
		VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET balance = token_balances.balance + EXCLUDED.balance
	`
	raiseSupply = `
		INSERT INTO token_supply (id, total)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET total = token_supply.total + EXCLUDED.total
	`
	debitBalance = `UPDATE token_balances SET balance = balance - $1 WHERE account = $2 AND balance >= $1`
)

// Mint credits every account and raises supply in one transaction.
func (s *SQLStorage) Mint(ctx context.Context, credits []Credit) error {
	byAccount := make(map[string]uint64, len(credits))
	var total uint64
	for _, c := range credits {
		if c.Amount > MaxSupply-total {
			return fmt.Errorf("mint of %d overflows the storable range", c.Amount)
		}
		byAccount[c.Account] += c.Amount
		total += c.Amount
	}
	if total == 0 {
		return nil
	}
	// Deterministic order keeps row locks consistent across writers.
	accounts := make([]string, 0, len(byAccount))
	for a := range byAccount {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin mint: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, account := range accounts {
		if _, err := tx.ExecContext(ctx, creditBalance, account, int64(byAccount[account])); err != nil {
			return fmt.Errorf("failed to credit %s: %w", account, err)
		}
	}
	if _, err := tx.ExecContext(ctx, raiseSupply, int64(total)); err != nil {
		return fmt.Errorf("failed to raise supply: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mint: %w", err)
	}
	return nil
}

// Transfer debits from only if it still covers amount, so concurrent writers
// cannot overdraw it.
func (s *SQLStorage) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if amount > MaxSupply {
		return ErrInsufficientFunds
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transfer: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, debitBalance, int64(amount), from)
	if err != nil {
		return fmt.Errorf("failed to debit %s: %w", from, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to debit %s: %w", from, err)
	}
	if n == 0 {
		return ErrInsufficientFunds
	}
	if _, err := tx.ExecContext(ctx, creditBalance, to, int64(amount)); err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}
