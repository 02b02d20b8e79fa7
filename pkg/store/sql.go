package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// SQLStore implements ActionStore using database/sql.
// It supports both Postgres (lib/pq) and SQLite (modernc) via $n
// placeholders. Timestamps are stored as unix nanoseconds, 0 meaning unset.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS actions (
	id BIGINT PRIMARY KEY,
	submitter TEXT NOT NULL,
	description TEXT NOT NULL,
	proof_reference TEXT NOT NULL,
	credit_type TEXT NOT NULL,
	methodology_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	baseline_id TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	uncertainty_bps BIGINT NOT NULL,
	durability_years BIGINT NOT NULL,
	metadata TEXT NOT NULL,
	attestation_id TEXT NOT NULL,
	status TEXT NOT NULL,
	reward_pending BIGINT NOT NULL,
	reward_paid BIGINT NOT NULL,
	submitted_at BIGINT NOT NULL,
	verified_at BIGINT NOT NULL,
	verifying_account TEXT NOT NULL,
	oracle_reports TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS challenges (
	action_id BIGINT NOT NULL,
	idx BIGINT NOT NULL,
	challenger TEXT NOT NULL,
	evidence_reference TEXT NOT NULL,
	raised_at BIGINT NOT NULL,
	resolved INTEGER NOT NULL,
	upheld INTEGER NOT NULL,
	resolved_at BIGINT NOT NULL,
	resolved_by TEXT NOT NULL,
	PRIMARY KEY (action_id, idx)
);
CREATE TABLE IF NOT EXISTS settlement_receipts (
	action_id BIGINT PRIMARY KEY,
	receipt_id TEXT NOT NULL,
	body TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS engine_settings (
	name TEXT PRIMARY KEY,
	body TEXT NOT NULL
);
`

// Init creates the tables.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const actionColumns = `id, submitter, description, proof_reference, credit_type,
	methodology_id, project_id, baseline_id, quantity, uncertainty_bps, durability_years,
	metadata, attestation_id, status, reward_pending, reward_paid, submitted_at, verified_at,
	verifying_account, oracle_reports`

func (s *SQLStore) CreateAction(ctx context.Context, a *contracts.Action) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM actions`).Scan(&last); err != nil {
		return 0, fmt.Errorf("next action id: %w", err)
	}
	c := a.Clone()
	c.ID = uint64(last) + 1

	args, err := actionArgs(c)
	if err != nil {
		return 0, err
	}
	query := `INSERT INTO actions (` + actionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("insert action: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return c.ID, nil
}

func (s *SQLStore) GetAction(ctx context.Context, id uint64) (*contracts.Action, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = $1`, int64(id))
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *SQLStore) UpdateAction(ctx context.Context, a *contracts.Action) error {
	reports, err := json.Marshal(nonNil(a.OracleReports))
	if err != nil {
		return fmt.Errorf("encode oracle reports: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE actions SET
			attestation_id = $1, status = $2, reward_pending = $3, reward_paid = $4,
			verified_at = $5, verifying_account = $6, oracle_reports = $7
		WHERE id = $8
	`, a.AttestationID, string(a.Status), int64(a.RewardPending), int64(a.RewardPaid),
		toNanos(a.VerifiedAt), a.VerifyingAccount, string(reports), int64(a.ID))
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ActionCount(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM actions`).Scan(&n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (s *SQLStore) ListActions(ctx context.Context, after uint64, limit int) ([]*contracts.Action, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE id > $1 ORDER BY id ASC LIMIT $2`, int64(after), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) AppendChallenge(ctx context.Context, c *contracts.Challenge) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM challenges WHERE action_id = $1`, int64(c.ActionID)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count challenges: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO challenges (action_id, idx, challenger, evidence_reference, raised_at, resolved, upheld, resolved_at, resolved_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, int64(c.ActionID), n, c.Challenger, c.EvidenceReference, toNanos(c.RaisedAt),
		boolInt(c.Resolved), boolInt(c.Upheld), toNanos(c.ResolvedAt), c.ResolvedBy)
	if err != nil {
		return 0, fmt.Errorf("insert challenge: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(n), nil
}

func (s *SQLStore) UpdateChallenge(ctx context.Context, c *contracts.Challenge) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE challenges SET resolved = $1, upheld = $2, resolved_at = $3, resolved_by = $4
		WHERE action_id = $5 AND idx = $6
	`, boolInt(c.Resolved), boolInt(c.Upheld), toNanos(c.ResolvedAt), c.ResolvedBy, int64(c.ActionID), int64(c.Index))
	if err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Challenges(ctx context.Context, actionID uint64) ([]*contracts.Challenge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action_id, idx, challenger, evidence_reference, raised_at, resolved, upheld, resolved_at, resolved_by
		FROM challenges WHERE action_id = $1 ORDER BY idx ASC
	`, int64(actionID))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []*contracts.Challenge{}
	for rows.Next() {
		var (
			c                            contracts.Challenge
			aid, idx, raised, resolvedAt int64
			resolved, upheld             int64
		)
		if err := rows.Scan(&aid, &idx, &c.Challenger, &c.EvidenceReference, &raised,
			&resolved, &upheld, &resolvedAt, &c.ResolvedBy); err != nil {
			return nil, err
		}
		c.ActionID = uint64(aid)
		c.Index = int(idx)
		c.RaisedAt = fromNanos(raised)
		c.Resolved = resolved != 0
		c.Upheld = upheld != 0
		c.ResolvedAt = fromNanos(resolvedAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLStore) PutReceipt(ctx context.Context, r *contracts.SettlementReceipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settlement_receipts (action_id, receipt_id, body) VALUES ($1, $2, $3)
		ON CONFLICT (action_id) DO UPDATE SET receipt_id = EXCLUDED.receipt_id, body = EXCLUDED.body
	`, int64(r.ActionID), r.ReceiptID, string(body))
	if err != nil {
		return fmt.Errorf("store receipt: %w", err)
	}
	return nil
}

func (s *SQLStore) Receipt(ctx context.Context, actionID uint64) (*contracts.SettlementReceipt, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM settlement_receipts WHERE action_id = $1`, int64(actionID)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r contracts.SettlementReceipt
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &r, nil
}

const paramsKey = "params"

func (s *SQLStore) LoadParams(ctx context.Context) (contracts.Params, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM engine_settings WHERE name = $1`, paramsKey).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.Params{}, ErrNotFound
	}
	if err != nil {
		return contracts.Params{}, err
	}
	var p contracts.Params
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return contracts.Params{}, fmt.Errorf("decode params: %w", err)
	}
	return p, nil
}

func (s *SQLStore) SaveParams(ctx context.Context, p contracts.Params) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO engine_settings (name, body) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body
	`, paramsKey, string(body))
	if err != nil {
		return fmt.Errorf("store params: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(r rowScanner) (*contracts.Action, error) {
	var (
		a                                contracts.Action
		id, qty, unc, dur, pending, paid int64
		submitted, verified              int64
		creditType, status, reports      string
		methodology, project, baseline   string
	)
	err := r.Scan(&id, &a.Submitter, &a.Description, &a.ProofReference, &creditType,
		&methodology, &project, &baseline, &qty, &unc, &dur,
		&a.Metadata, &a.AttestationID, &status, &pending, &paid, &submitted, &verified,
		&a.VerifyingAccount, &reports)
	if err != nil {
		return nil, err
	}
	a.ID = uint64(id)
	a.CreditType = contracts.CreditType(creditType)
	a.Status = contracts.ActionStatus(status)
	a.Quantity = uint64(qty)
	a.UncertaintyBps = uint32(unc)
	a.DurabilityYears = uint32(dur)
	a.RewardPending = uint64(pending)
	a.RewardPaid = uint64(paid)
	a.SubmittedAt = fromNanos(submitted)
	a.VerifiedAt = fromNanos(verified)
	if a.MethodologyID, err = contracts.ParseRefID(methodology); err != nil {
		return nil, err
	}
	if a.ProjectID, err = contracts.ParseRefID(project); err != nil {
		return nil, err
	}
	if a.BaselineID, err = contracts.ParseRefID(baseline); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reports), &a.OracleReports); err != nil {
		return nil, fmt.Errorf("decode oracle reports: %w", err)
	}
	if len(a.OracleReports) == 0 {
		a.OracleReports = nil
	}
	return &a, nil
}

func actionArgs(a *contracts.Action) ([]any, error) {
	reports, err := json.Marshal(nonNil(a.OracleReports))
	if err != nil {
		return nil, fmt.Errorf("encode oracle reports: %w", err)
	}
	return []any{
		int64(a.ID), a.Submitter, a.Description, a.ProofReference, string(a.CreditType),
		a.MethodologyID.String(), a.ProjectID.String(), a.BaselineID.String(),
		int64(a.Quantity), int64(a.UncertaintyBps), int64(a.DurabilityYears),
		a.Metadata, a.AttestationID, string(a.Status), int64(a.RewardPending), int64(a.RewardPaid),
		toNanos(a.SubmittedAt), toNanos(a.VerifiedAt), a.VerifyingAccount, string(reports),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
