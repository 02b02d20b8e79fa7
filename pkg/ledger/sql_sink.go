package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// SQLSink persists journal entries with database/sql.
// It supports both Postgres and SQLite.
type SQLSink struct {
	db *sql.DB
}

func NewSQLSink(db *sql.DB) *SQLSink {
	return &SQLSink{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	sequence BIGINT PRIMARY KEY,
	type TEXT NOT NULL,
	action_id BIGINT NOT NULL,
	actor TEXT NOT NULL,
	ts BIGINT NOT NULL,
	data TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	content_hash TEXT NOT NULL
);
`

func (s *SQLSink) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLSink) Write(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries (sequence, type, action_id, actor, ts, data, prev_hash, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, int64(e.Sequence), string(e.Type), int64(e.ActionID), e.Actor, e.Timestamp.UnixNano(),
		string(e.Data), e.PrevHash, e.ContentHash)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *SQLSink) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, type, action_id, actor, ts, data, prev_hash, content_hash
		FROM journal_entries ORDER BY sequence ASC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e            Entry
			seq, aid, ts int64
			typ, data    string
		)
		if err := rows.Scan(&seq, &typ, &aid, &e.Actor, &ts, &data, &e.PrevHash, &e.ContentHash); err != nil {
			return nil, err
		}
		e.Sequence = uint64(seq)
		e.Type = contracts.EventType(typ)
		e.ActionID = uint64(aid)
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Data = []byte(data)
		out = append(out, e)
	}
	return out, rows.Err()
}
