package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyMiddleware_ReplaysSuccess(t *testing.T) {
	store := NewIdempotencyStore(time.Hour)
	calls := 0
	handler := IdempotencyMiddleware(store, func(r *http.Request) string {
		return r.Header.Get("X-Account")
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		WriteJSON(w, http.StatusCreated, map[string]int{"id": calls})
	}))

	send := func(account, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/actions", strings.NewReader("{}"))
		req.Header.Set("X-Account", account)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	first := send("alice", "k1")
	second := send("alice", "k1")
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))

	send("bob", "k1")
	assert.Equal(t, 2, calls, "keys are scoped per caller")

	send("alice", "")
	send("alice", "")
	assert.Equal(t, 4, calls, "requests without a key are never replayed")
}

func TestIdempotencyMiddleware_DoesNotCacheFailures(t *testing.T) {
	store := NewIdempotencyStore(time.Hour)
	calls := 0
	handler := IdempotencyMiddleware(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		WriteConflict(w, "not yet")
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/actions/1/finalize", nil)
		req.Header.Set("Idempotency-Key", "k")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore(time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", &CachedResponse{StatusCode: 200, Body: []byte("ok")}))
	_, ok, err := store.Check(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = store.Check(ctx, "k")
	assert.False(t, ok)
	store.Sweep()
	assert.Empty(t, store.entries)
}

func TestSQLIdempotencyStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewSQLIdempotencyStore(db, time.Hour).WithClock(func() time.Time { return now })
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO idempotency_keys`)).
		WithArgs("k1", 201, `{"Content-Type":["application/json"]}`, `{"id":1}`, now.UnixNano()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	require.NoError(t, store.Set(ctx, "k1", &CachedResponse{StatusCode: 201, Headers: hdr, Body: []byte(`{"id":1}`)}))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status_code, headers, body, cached_at FROM idempotency_keys WHERE key = $1`)).
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows([]string{"status_code", "headers", "body", "cached_at"}).
			AddRow(201, `{"Content-Type":["application/json"]}`, `{"id":1}`, now.Add(-time.Minute).UnixNano()))
	resp, ok, err := store.Check(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers.Get("Content-Type"))
	assert.Equal(t, `{"id":1}`, string(resp.Body))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status_code`)).
		WithArgs("stale").
		WillReturnRows(sqlmock.NewRows([]string{"status_code", "headers", "body", "cached_at"}).
			AddRow(201, `{}`, `{}`, now.Add(-2*time.Hour).UnixNano()))
	_, ok, err = store.Check(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM idempotency_keys WHERE cached_at < $1`)).
		WithArgs(now.Add(-time.Hour).UnixNano()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, mock.ExpectationsWereMet())
}
