package registry

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// SQLBackend implements Backend with SQL persistence (Postgres or SQLite).
type SQLBackend struct {
	db *sql.DB
}

func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS reference_entries (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	content_ref TEXT NOT NULL,
	active INTEGER NOT NULL,
	updated_at BIGINT NOT NULL
);
`

func (b *SQLBackend) Init(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, schema)
	return err
}

func (b *SQLBackend) Put(ctx context.Context, ref contracts.Reference) error {
	active := 0
	if ref.Active {
		active = 1
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO reference_entries (id, name, version, content_ref, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, version = EXCLUDED.version, content_ref = EXCLUDED.content_ref,
			active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	`, ref.ID.String(), ref.Name, ref.Version, ref.ContentRef, active, ref.UpdatedAt.UnixNano())
	return err
}

func (b *SQLBackend) Get(ctx context.Context, id contracts.RefID) (contracts.Reference, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, name, version, content_ref, active, updated_at
		FROM reference_entries WHERE id = $1
	`, id.String())
	ref, err := scanReference(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.Reference{}, ErrNotFound
	}
	return ref, err
}

func (b *SQLBackend) List(ctx context.Context) ([]contracts.Reference, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, name, version, content_ref, active, updated_at
		FROM reference_entries ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []contracts.Reference{}
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func scanReference(r interface{ Scan(...any) error }) (contracts.Reference, error) {
	var (
		ref            contracts.Reference
		id             string
		active         int64
		updatedAtNanos int64
	)
	if err := r.Scan(&id, &ref.Name, &ref.Version, &ref.ContentRef, &active, &updatedAtNanos); err != nil {
		return contracts.Reference{}, err
	}
	parsed, err := contracts.ParseRefID(id)
	if err != nil {
		return contracts.Reference{}, err
	}
	ref.ID = parsed
	ref.Active = active != 0
	ref.UpdatedAt = time.Unix(0, updatedAtNanos).UTC()
	return ref, nil
}
