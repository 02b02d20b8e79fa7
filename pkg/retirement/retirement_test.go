package retirement

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoproof/ecoproof/pkg/contracts"

	_ "modernc.org/sqlite"
)

func finalized(id uint64, submitter string, qty uint64) *contracts.Action {
	return &contracts.Action{
		ID: id, Submitter: submitter, Status: contracts.StatusFinalized,
		Claim: contracts.Claim{Quantity: qty, CreditType: contracts.CreditRemoval},
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "retirements.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewSQLStore(db)
	require.NoError(t, s.Init(context.Background()))
	return map[string]Store{"memory": NewMemoryStore(), "sqlite": s}
}

func TestRetire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry(s)
			a1 := finalized(1, "alice", 1000)
			a2 := finalized(2, "alice", 500)

			rec, err := r.Retire(ctx, Request{
				Retiree: "alice", Actions: []*contracts.Action{a1, a2}, Amounts: []uint64{600, 500},
				Reason: "2025 scope 1 offset", Beneficiary: "Acme Ltd",
			}, now)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), rec.Serial)
			assert.Equal(t, uint64(1100), rec.Total())

			got, err := r.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, []uint64{1, 2}, got.ActionIDs)
			assert.Equal(t, []uint64{600, 500}, got.Amounts)
			assert.Equal(t, "Acme Ltd", got.Beneficiary)
			assert.True(t, got.RetiredAt.Equal(now))

			left, err := r.Retired(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, uint64(600), left)

			_, err = r.Retire(ctx, Request{Retiree: "alice", Actions: []*contracts.Action{a1}, Amounts: []uint64{401}}, now)
			assert.ErrorIs(t, err, contracts.KindInsufficientBalance)

			rec, err = r.Retire(ctx, Request{Retiree: "alice", Actions: []*contracts.Action{a1}, Amounts: []uint64{400}}, now)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), rec.Serial)

			_, err = r.Get(ctx, 9)
			assert.ErrorIs(t, err, contracts.KindNotFound)
		})
	}
}

func TestRetire_Rejections(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewMemoryStore())
	mine := finalized(1, "alice", 100)
	verified := finalized(2, "alice", 100)
	verified.Status = contracts.StatusVerified

	tests := []struct {
		name string
		req  Request
		kind contracts.Kind
	}{
		{"empty", Request{Retiree: "alice"}, contracts.KindInvalidInput},
		{"length mismatch", Request{Retiree: "alice", Actions: []*contracts.Action{mine}, Amounts: []uint64{1, 2}}, contracts.KindInvalidInput},
		{"zero amount", Request{Retiree: "alice", Actions: []*contracts.Action{mine}, Amounts: []uint64{0}}, contracts.KindInvalidInput},
		{"not submitter", Request{Retiree: "bob", Actions: []*contracts.Action{mine}, Amounts: []uint64{1}}, contracts.KindNotAuthorized},
		{"not finalized", Request{Retiree: "alice", Actions: []*contracts.Action{verified}, Amounts: []uint64{1}}, contracts.KindInvalidState},
		{"duplicate lines exceed quantity", Request{Retiree: "alice", Actions: []*contracts.Action{mine, mine}, Amounts: []uint64{60, 41}}, contracts.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Retire(ctx, tt.req, time.Now())
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}
