// Package retirement records permanent retirement of finalized credit
// quantity. Retirements are numbered by serial and an action can never have
// more grams retired than it claimed.
package retirement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// ErrNotFound is returned by stores for unknown serials.
var ErrNotFound = errors.New("retirement not found")

// Store persists retirements.
type Store interface {
	// Create assigns the next serial (starting at 1) and stores r.
	Create(ctx context.Context, r *contracts.Retirement) (uint64, error)
	Get(ctx context.Context, serial uint64) (*contracts.Retirement, error)
	// Retired returns the grams already retired from an action.
	Retired(ctx context.Context, actionID uint64) (uint64, error)
}

// Request is a caller's retirement instruction. Actions are resolved by the
// caller and given in the same order as Amounts.
type Request struct {
	Retiree     string
	Actions     []*contracts.Action
	Amounts     []uint64
	Reason      string
	Beneficiary string
}

// Registry enforces retirement rules.
type Registry struct {
	store Store
}

func NewRegistry(s Store) *Registry {
	return &Registry{store: s}
}

// Check validates req without writing.
func (r *Registry) Check(ctx context.Context, req Request) error {
	const op = "retire"
	if len(req.Actions) == 0 {
		return contracts.Errorf(contracts.KindInvalidInput, op, "at least one action is required")
	}
	if len(req.Actions) != len(req.Amounts) {
		return contracts.Errorf(contracts.KindInvalidInput, op, "%d actions but %d amounts", len(req.Actions), len(req.Amounts))
	}
	requested := make(map[uint64]uint64, len(req.Actions))
	for i, a := range req.Actions {
		amt := req.Amounts[i]
		if amt == 0 {
			return contracts.Errorf(contracts.KindInvalidInput, op, "amount for action %d must be positive", a.ID)
		}
		if a.Submitter != req.Retiree {
			return contracts.Errorf(contracts.KindNotAuthorized, op, "action %d was not submitted by %q", a.ID, req.Retiree)
		}
		if a.Status != contracts.StatusFinalized {
			return contracts.Errorf(contracts.KindInvalidState, op, "action %d is not FINALIZED (status=%s)", a.ID, a.Status)
		}
		if amt > a.Quantity-requested[a.ID] {
			return contracts.Errorf(contracts.KindInvalidInput, op, "action %d: amounts exceed claimed quantity %d", a.ID, a.Quantity)
		}
		requested[a.ID] += amt
	}
	for _, a := range req.Actions {
		done, err := r.store.Retired(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("retirement: load retired total: %w", err)
		}
		if requested[a.ID] > a.Quantity-done {
			return contracts.Errorf(contracts.KindInsufficientBalance, op,
				"action %d has %d grams left to retire, requested %d", a.ID, a.Quantity-done, requested[a.ID])
		}
	}
	return nil
}

// Retire records req and returns the stored retirement.
func (r *Registry) Retire(ctx context.Context, req Request, now time.Time) (*contracts.Retirement, error) {
	if err := r.Check(ctx, req); err != nil {
		return nil, err
	}
	rec := &contracts.Retirement{
		Retiree:     req.Retiree,
		ActionIDs:   make([]uint64, len(req.Actions)),
		Amounts:     append([]uint64(nil), req.Amounts...),
		Reason:      req.Reason,
		Beneficiary: req.Beneficiary,
		RetiredAt:   now,
	}
	for i, a := range req.Actions {
		rec.ActionIDs[i] = a.ID
	}
	serial, err := r.store.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("retirement: create: %w", err)
	}
	rec.Serial = serial
	return rec, nil
}

// Get returns NOT_FOUND for unknown serials.
func (r *Registry) Get(ctx context.Context, serial uint64) (*contracts.Retirement, error) {
	rec, err := r.store.Get(ctx, serial)
	if errors.Is(err, ErrNotFound) {
		return nil, contracts.Errorf(contracts.KindNotFound, "get_retirement", "no retirement with serial %d", serial)
	}
	if err != nil {
		return nil, fmt.Errorf("retirement: get: %w", err)
	}
	return rec, nil
}

// Retired returns the grams already retired from an action.
func (r *Registry) Retired(ctx context.Context, actionID uint64) (uint64, error) {
	n, err := r.store.Retired(ctx, actionID)
	if err != nil {
		return 0, fmt.Errorf("retirement: retired total: %w", err)
	}
	return n, nil
}
