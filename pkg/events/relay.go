package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ecoproof/ecoproof/pkg/ledger"
)

// Relay tails the journal and publishes new entries.
type Relay struct {
	journal   *ledger.Journal
	publisher Publisher
	cursor    Cursor
	breaker   *CircuitBreaker
	batch     int
	interval  time.Duration
	logger    *slog.Logger
}

// NewRelay creates a relay. A nil cursor starts from the beginning on every
// run.
func NewRelay(j *ledger.Journal, p Publisher, c Cursor) *Relay {
	if c == nil {
		c = &MemoryCursor{}
	}
	return &Relay{
		journal:   j,
		publisher: p,
		cursor:    c,
		breaker:   NewCircuitBreaker(5, 30*time.Second),
		batch:     100,
		interval:  time.Second,
		logger:    slog.Default().With("component", "relay"),
	}
}

// WithBatch sets the maximum entries per publish.
func (r *Relay) WithBatch(n int) *Relay {
	if n > 0 {
		r.batch = n
	}
	return r
}

// WithInterval sets the poll interval of Run.
func (r *Relay) WithInterval(d time.Duration) *Relay {
	if d > 0 {
		r.interval = d
	}
	return r
}

// WithBreaker replaces the circuit breaker guarding Run.
func (r *Relay) WithBreaker(cb *CircuitBreaker) *Relay {
	if cb != nil {
		r.breaker = cb
	}
	return r
}

// Encode turns an entry into a broker message keyed by action id. Entries
// that concern no action are keyed "engine".
func Encode(e ledger.Entry) (Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return Message{}, fmt.Errorf("relay: encode entry %d: %w", e.Sequence, err)
	}
	key := "engine"
	if e.ActionID != 0 {
		key = strconv.FormatUint(e.ActionID, 10)
	}
	return Message{
		Key:   []byte(key),
		Value: value,
		Headers: map[string]string{
			"event-type":   string(e.Type),
			"sequence":     strconv.FormatUint(e.Sequence, 10),
			"content-hash": e.ContentHash,
		},
	}, nil
}

// RunOnce publishes at most one batch and returns how many entries went out.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	after, err := r.cursor.Load(ctx)
	if err != nil {
		return 0, err
	}
	entries := r.journal.Since(after, r.batch)
	if len(entries) == 0 {
		return 0, nil
	}
	msgs := make([]Message, 0, len(entries))
	for _, e := range entries {
		m, err := Encode(e)
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, m)
	}
	if err := r.publisher.Publish(ctx, msgs...); err != nil {
		return 0, err
	}
	last := entries[len(entries)-1].Sequence
	if err := r.cursor.Save(ctx, last); err != nil {
		return 0, err
	}
	r.logger.DebugContext(ctx, "relayed journal entries", "count", len(entries), "through", last)
	return len(entries), nil
}

// Run drains the journal, then polls until ctx is done. Publish failures
// are logged and retried on a later tick; while the breaker is open no
// attempt is made.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		for r.breaker.Allow() {
			n, err := r.RunOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.breaker.Failure()
				r.logger.WarnContext(ctx, "relay batch failed", "error", err, "breaker", r.breaker.State())
				break
			}
			r.breaker.Success()
			if n < r.batch {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
