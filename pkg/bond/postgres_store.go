package bond

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	_ "github.com/lib/pq"
)

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

const pgBondSchema = `
CREATE TABLE IF NOT EXISTS bond_balances (
	book TEXT NOT NULL,
	account TEXT NOT NULL,
	balance BIGINT NOT NULL CHECK (balance >= 0),
	PRIMARY KEY (book, account)
);
`

// Init creates the balances table.
func (s *PostgresStorage) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgBondSchema)
	return err
}

func (s *PostgresStorage) Balance(ctx context.Context, book Book, account string) (uint64, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT balance FROM bond_balances WHERE book = $1 AND account = $2",
		string(book), account)

	var bal int64
	err := row.Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return uint64(bal), nil
}

func (s *PostgresStorage) SetBalances(ctx context.Context, book Book, balances map[string]uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin balance update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Deterministic order keeps row locks consistent across writers.
	accounts := make([]string, 0, len(balances))
	for a := range balances {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)

	query := `
		INSERT INTO bond_balances (book, account, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (book, account) DO UPDATE SET balance = EXCLUDED.balance
	`
	for _, account := range accounts {
		bal := balances[account]
		if bal > MaxBalance {
			return fmt.Errorf("balance %d for %s exceeds storable range", bal, account)
		}
		if _, err := tx.ExecContext(ctx, query, string(book), account, int64(bal)); err != nil {
			return fmt.Errorf("failed to persist balance: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit balances: %w", err)
	}
	return nil
}
