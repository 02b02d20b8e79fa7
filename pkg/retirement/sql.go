package retirement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// SQLStore implements Store using database/sql (Postgres or SQLite).
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS retirements (
	serial BIGINT PRIMARY KEY,
	retiree TEXT NOT NULL,
	reason TEXT NOT NULL,
	beneficiary TEXT NOT NULL,
	retired_at BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS retirement_lines (
	serial BIGINT NOT NULL,
	line BIGINT NOT NULL,
	action_id BIGINT NOT NULL,
	amount BIGINT NOT NULL,
	PRIMARY KEY (serial, line)
);
`

func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) Create(ctx context.Context, r *contracts.Retirement) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(serial), 0) FROM retirements`).Scan(&last); err != nil {
		return 0, fmt.Errorf("next serial: %w", err)
	}
	serial := last + 1
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO retirements (serial, retiree, reason, beneficiary, retired_at)
		VALUES ($1, $2, $3, $4, $5)
	`, serial, r.Retiree, r.Reason, r.Beneficiary, r.RetiredAt.UnixNano()); err != nil {
		return 0, fmt.Errorf("insert retirement: %w", err)
	}
	for i, id := range r.ActionIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO retirement_lines (serial, line, action_id, amount) VALUES ($1, $2, $3, $4)
		`, serial, int64(i), int64(id), int64(r.Amounts[i])); err != nil {
			return 0, fmt.Errorf("insert retirement line: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return uint64(serial), nil
}

func (s *SQLStore) Get(ctx context.Context, serial uint64) (*contracts.Retirement, error) {
	var (
		r  contracts.Retirement
		at int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT retiree, reason, beneficiary, retired_at FROM retirements WHERE serial = $1
	`, int64(serial)).Scan(&r.Retiree, &r.Reason, &r.Beneficiary, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Serial = serial
	r.RetiredAt = time.Unix(0, at).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT action_id, amount FROM retirement_lines WHERE serial = $1 ORDER BY line ASC
	`, int64(serial))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id, amt int64
		if err := rows.Scan(&id, &amt); err != nil {
			return nil, err
		}
		r.ActionIDs = append(r.ActionIDs, uint64(id))
		r.Amounts = append(r.Amounts, uint64(amt))
	}
	return &r, rows.Err()
}

func (s *SQLStore) Retired(ctx context.Context, actionID uint64) (uint64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM retirement_lines WHERE action_id = $1`, int64(actionID)).Scan(&n)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}
