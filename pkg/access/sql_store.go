package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// SQLStorage implements Storage using database/sql.
// It works with both Postgres and SQLite.
type SQLStorage struct {
	db *sql.DB
}

func NewSQLStorage(db *sql.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS role_members (
	role TEXT NOT NULL,
	account TEXT NOT NULL,
	PRIMARY KEY (role, account)
);
`

// Init creates the role table. The admin is stored as a role_members row
// with role 'admin'.
func (s *SQLStorage) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStorage) Admin(ctx context.Context) (string, error) {
	var account string
	err := s.db.QueryRowContext(ctx,
		`SELECT account FROM role_members WHERE role = $1`, string(contracts.RoleAdmin)).Scan(&account)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return account, nil
}

func (s *SQLStorage) SetAdmin(ctx context.Context, account string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_members WHERE role = $1`, string(contracts.RoleAdmin)); err != nil {
		return fmt.Errorf("clear admin: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO role_members (role, account) VALUES ($1, $2)`, string(contracts.RoleAdmin), account); err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStorage) HasRole(ctx context.Context, role contracts.Role, account string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_members WHERE role = $1 AND account = $2`, string(role), account).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStorage) Members(ctx context.Context, role contracts.Role) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account FROM role_members WHERE role = $1 ORDER BY account`, string(role))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStorage) Grant(ctx context.Context, role contracts.Role, account string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_members (role, account) VALUES ($1, $2)
		ON CONFLICT (role, account) DO NOTHING
	`, string(role), account)
	return err
}

func (s *SQLStorage) Revoke(ctx context.Context, role contracts.Role, account string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM role_members WHERE role = $1 AND account = $2`, string(role), account)
	return err
}
