package api

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayHeader         = "Idempotent-Replay"
)

// CachedResponse is a successful write response kept for replay.
type CachedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	CachedAt   time.Time
}

func (c *CachedResponse) fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.CachedAt) < ttl
}

// replay writes c to w and marks it as a replay.
func (c *CachedResponse) replay(w http.ResponseWriter) {
	h := w.Header()
	for k, vals := range c.Headers {
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	h.Set(replayHeader, "true")
	w.WriteHeader(c.StatusCode)
	_, _ = w.Write(c.Body)
}

// IdempotencyStorer is implemented by MemoryIdempotencyStore and
// SQLIdempotencyStore.
type IdempotencyStorer interface {
	Check(ctx context.Context, key string) (*CachedResponse, bool, error)
	Set(ctx context.Context, key string, resp *CachedResponse) error
}

// MemoryIdempotencyStore keeps cached responses in process. Expired entries
// are invisible to Check and reclaimed by Sweep.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]*CachedResponse
	ttl     time.Duration
	now     func() time.Time
}

func NewIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]*CachedResponse),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides clock for testing.
func (s *MemoryIdempotencyStore) WithClock(clock func() time.Time) *MemoryIdempotencyStore {
	s.now = clock
	return s
}

func (s *MemoryIdempotencyStore) Check(_ context.Context, key string) (*CachedResponse, bool, error) {
	s.mu.RLock()
	c, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || !c.fresh(s.now(), s.ttl) {
		return nil, false, nil
	}
	return c, true, nil
}

func (s *MemoryIdempotencyStore) Set(_ context.Context, key string, resp *CachedResponse) error {
	c := *resp
	c.CachedAt = s.now()
	s.mu.Lock()
	s.entries[key] = &c
	s.mu.Unlock()
	return nil
}

// Sweep drops expired entries.
func (s *MemoryIdempotencyStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, c := range s.entries {
		if !c.fresh(now, s.ttl) {
			delete(s.entries, k)
		}
	}
}

// recorder tees the response to the client and a buffer.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rec *recorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	rec.body.Write(b)
	return rec.ResponseWriter.Write(b)
}

// cached returns the recorded response when it is worth replaying. Only
// 2xx responses are kept so a rejected write can be retried.
func (rec *recorder) cached() (*CachedResponse, bool) {
	if rec.status < 200 || rec.status > 299 {
		return nil, false
	}
	hdr := make(http.Header)
	if ct := rec.Header().Get("Content-Type"); ct != "" {
		hdr.Set("Content-Type", ct)
	}
	return &CachedResponse{StatusCode: rec.status, Headers: hdr, Body: rec.body.Bytes()}, true
}

// IdempotencyMiddleware replays the first successful response to a POST or
// PUT carrying an Idempotency-Key header. Keys are scoped by scope(r), the
// method and the path, so two callers cannot collide.
func IdempotencyMiddleware(store IdempotencyStorer, scope KeyFunc) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "idempotency")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := idempotencyKey(r, scope)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			prior, ok, err := store.Check(r.Context(), key)
			if err != nil {
				WriteInternal(w, err)
				return
			}
			if ok {
				prior.replay(w)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if resp, keep := rec.cached(); keep {
				if err := store.Set(r.Context(), key, resp); err != nil {
					logger.WarnContext(r.Context(), "idempotent response not cached", "key", key, "error", err)
				}
			}
		})
	}
}

// idempotencyKey is empty for requests that must not be replayed.
func idempotencyKey(r *http.Request, scope KeyFunc) string {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return ""
	}
	key := r.Header.Get(idempotencyKeyHeader)
	if key == "" || scope == nil {
		return key
	}
	return scope(r) + "|" + r.Method + " " + r.URL.Path + "|" + key
}
