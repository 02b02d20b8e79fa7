package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// SQLIdempotencyStore keeps idempotent responses in a SQL table so replays
// survive restarts. The queries run on Postgres and SQLite; cached_at is
// unix nanoseconds.
type SQLIdempotencyStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLIdempotencyStore creates a SQL-backed idempotency store.
func NewSQLIdempotencyStore(db *sql.DB, ttl time.Duration) *SQLIdempotencyStore {
	return &SQLIdempotencyStore{db: db, ttl: ttl, now: time.Now}
}

// WithClock overrides clock for testing.
func (s *SQLIdempotencyStore) WithClock(clock func() time.Time) *SQLIdempotencyStore {
	s.now = clock
	return s
}

// Init creates the table.
func (s *SQLIdempotencyStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL,
			headers TEXT NOT NULL,
			body TEXT NOT NULL,
			cached_at BIGINT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("idempotency: create table: %w", err)
	}
	return nil
}

// Check returns a cached response if the key was seen within the TTL.
func (s *SQLIdempotencyStore) Check(ctx context.Context, key string) (*CachedResponse, bool, error) {
	var (
		statusCode int
		headers    string
		body       string
		cachedAt   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status_code, headers, body, cached_at FROM idempotency_keys WHERE key = $1`,
		key,
	).Scan(&statusCode, &headers, &body, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: lookup: %w", err)
	}
	at := time.Unix(0, cachedAt).UTC()
	if s.now().Sub(at) > s.ttl {
		return nil, false, nil
	}

	hdr := make(http.Header)
	if err := json.Unmarshal([]byte(headers), &hdr); err != nil {
		return nil, false, fmt.Errorf("idempotency: decode headers: %w", err)
	}
	return &CachedResponse{StatusCode: statusCode, Headers: hdr, Body: []byte(body), CachedAt: at}, true, nil
}

// Set stores an idempotency key and its response.
func (s *SQLIdempotencyStore) Set(ctx context.Context, key string, resp *CachedResponse) error {
	headers, err := json.Marshal(resp.Headers)
	if err != nil {
		return fmt.Errorf("idempotency: encode headers: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, status_code, headers, body, cached_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET status_code = $2, headers = $3, body = $4, cached_at = $5`,
		key, resp.StatusCode, string(headers), string(resp.Body), s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("idempotency: store %s: %w", key, err)
	}
	return nil
}

// Cleanup removes keys older than the TTL.
func (s *SQLIdempotencyStore) Cleanup(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE cached_at < $1`,
		s.now().Add(-s.ttl).UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup: %w", err)
	}
	return res.RowsAffected()
}
