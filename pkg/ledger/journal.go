// Package ledger keeps the engine journal: an append-only, hash-chained
// record of every state change.
//
// Each entry's content hash covers its sequence, type, subject, payload and
// the previous entry's hash; the first entry chains from "genesis".
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ecoproof/ecoproof/pkg/canonicalize"
	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// GenesisHash is the prev hash of the first entry.
const GenesisHash = "genesis"

// Entry is an immutable, hash-chained journal entry. Data holds the
// canonical JSON of the payload.
type Entry struct {
	Sequence    uint64              `json:"sequence"`
	Type        contracts.EventType `json:"type"`
	ActionID    uint64              `json:"action_id,omitempty"`
	Actor       string              `json:"actor,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
	Data        json.RawMessage     `json:"data"`
	PrevHash    string              `json:"prev_hash"`
	ContentHash string              `json:"content_hash"`
}

// Sink persists entries. Write is called before an entry becomes visible.
type Sink interface {
	Write(ctx context.Context, e Entry) error
	Load(ctx context.Context) ([]Entry, error)
}

// Journal is an append-only, hash-chained log.
type Journal struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	sink     Sink
}

// NewJournal creates an empty journal. sink may be nil.
func NewJournal(sink Sink) *Journal {
	return &Journal{
		entries:  make([]Entry, 0),
		headHash: GenesisHash,
		sink:     sink,
	}
}

// Restore loads persisted entries from the sink and verifies the chain.
func (j *Journal) Restore(ctx context.Context) error {
	if j.sink == nil {
		return nil
	}
	loaded, err := j.sink.Load(ctx)
	if err != nil {
		return fmt.Errorf("journal: load: %w", err)
	}
	if err := verifyChain(loaded); err != nil {
		return fmt.Errorf("journal: restore: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = loaded
	j.headHash = GenesisHash
	if n := len(loaded); n > 0 {
		j.headHash = loaded[n-1].ContentHash
	}
	return nil
}

// Append adds an entry and returns it.
func (j *Journal) Append(ctx context.Context, typ contracts.EventType, actionID uint64, actor string, at time.Time, data any) (Entry, error) {
	if data == nil {
		data = struct{}{}
	}
	payload, err := canonicalize.JCS(data)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: encode payload: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	e := Entry{
		Sequence:  uint64(len(j.entries)) + 1,
		Type:      typ,
		ActionID:  actionID,
		Actor:     actor,
		Timestamp: at.UTC(),
		Data:      payload,
		PrevHash:  j.headHash,
	}
	if e.ContentHash, err = entryHash(e); err != nil {
		return Entry{}, err
	}
	if j.sink != nil {
		if err := j.sink.Write(ctx, e); err != nil {
			return Entry{}, fmt.Errorf("journal: persist entry %d: %w", e.Sequence, err)
		}
	}
	j.entries = append(j.entries, e)
	j.headHash = e.ContentHash
	return e, nil
}

// Get retrieves an entry by sequence number.
func (j *Journal) Get(seq uint64) (*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if seq == 0 || seq > uint64(len(j.entries)) {
		return nil, fmt.Errorf("entry %d not found", seq)
	}
	e := j.entries[seq-1]
	return &e, nil
}

// Since returns up to limit entries with sequence > after.
func (j *Journal) Since(after uint64, limit int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if after >= uint64(len(j.entries)) {
		return nil
	}
	rest := j.entries[after:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	return append([]Entry(nil), rest...)
}

// ForAction returns every entry about actionID in order.
func (j *Journal) ForAction(actionID uint64) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Entry
	for _, e := range j.entries {
		if e.ActionID == actionID {
			out = append(out, e)
		}
	}
	return out
}

// Head returns the current head hash.
func (j *Journal) Head() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.headHash
}

// Length returns the number of entries.
func (j *Journal) Length() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Verify checks the integrity of the entire chain.
func (j *Journal) Verify() (bool, string) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if err := verifyChain(j.entries); err != nil {
		return false, err.Error()
	}
	return true, "chain verified"
}

// VerifyEntries checks a chain obtained elsewhere, e.g. from a sink.
func VerifyEntries(entries []Entry) error {
	return verifyChain(entries)
}

func verifyChain(entries []Entry) error {
	prev := GenesisHash
	for i, e := range entries {
		if e.Sequence != uint64(i)+1 {
			return fmt.Errorf("sequence gap at position %d: got %d", i+1, e.Sequence)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("chain broken at entry %d: expected prev %s, got %s", e.Sequence, prev, e.PrevHash)
		}
		computed, err := entryHash(e)
		if err != nil {
			return err
		}
		if computed != e.ContentHash {
			return fmt.Errorf("hash mismatch at entry %d", e.Sequence)
		}
		prev = e.ContentHash
	}
	return nil
}

func entryHash(e Entry) (string, error) {
	h, err := canonicalize.ContentHash(struct {
		Seq      uint64              `json:"seq"`
		Type     contracts.EventType `json:"type"`
		ActionID uint64              `json:"action_id"`
		Actor    string              `json:"actor"`
		At       string              `json:"at"`
		Data     json.RawMessage     `json:"data"`
		PrevHash string              `json:"prev"`
	}{e.Sequence, e.Type, e.ActionID, e.Actor, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Data, e.PrevHash})
	if err != nil {
		return "", fmt.Errorf("journal: hash entry %d: %w", e.Sequence, err)
	}
	return h, nil
}
