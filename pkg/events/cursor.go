package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Cursor remembers the last journal sequence a relay delivered.
type Cursor interface {
	Load(ctx context.Context) (uint64, error)
	Save(ctx context.Context, seq uint64) error
}

// MemoryCursor keeps the position in memory. A restart replays everything.
type MemoryCursor struct {
	mu  sync.Mutex
	seq uint64
}

func (c *MemoryCursor) Load(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq, nil
}

func (c *MemoryCursor) Save(_ context.Context, seq uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = seq
	return nil
}

// SQLCursor persists a named position in the relay_cursors table.
type SQLCursor struct {
	db   *sql.DB
	name string
}

// NewSQLCursor creates a cursor called name.
func NewSQLCursor(db *sql.DB, name string) *SQLCursor {
	return &SQLCursor{db: db, name: name}
}

// Init creates the table.
func (c *SQLCursor) Init(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS relay_cursors (
			name TEXT PRIMARY KEY,
			seq BIGINT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("relay cursor: create table: %w", err)
	}
	return nil
}

func (c *SQLCursor) Load(ctx context.Context) (uint64, error) {
	var seq int64
	err := c.db.QueryRowContext(ctx, `SELECT seq FROM relay_cursors WHERE name = $1`, c.name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("relay cursor: load %s: %w", c.name, err)
	}
	return uint64(seq), nil
}

func (c *SQLCursor) Save(ctx context.Context, seq uint64) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO relay_cursors (name, seq) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET seq = $2`, c.name, int64(seq))
	if err != nil {
		return fmt.Errorf("relay cursor: save %s: %w", c.name, err)
	}
	return nil
}
