package engine

import (
	"context"
	"time"

	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/ecoproof/ecoproof/pkg/retirement"
)

// Retire permanently retires quantity from the caller's finalized actions and
// returns the retirement record with its serial.
func (e *Engine) Retire(ctx context.Context, caller string, actionIDs, amounts []uint64, reason, beneficiary string) (*contracts.Retirement, error) {
	const op = "retire"
	var rec *contracts.Retirement
	err := e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := requireCaller(op, caller); err != nil {
			return err
		}
		req := retirement.Request{
			Retiree:     caller,
			Actions:     make([]*contracts.Action, 0, len(actionIDs)),
			Amounts:     amounts,
			Reason:      reason,
			Beneficiary: beneficiary,
		}
		for _, id := range actionIDs {
			a, err := e.loadAction(ctx, op, id)
			if err != nil {
				return err
			}
			req.Actions = append(req.Actions, a)
		}

		var err error
		if rec, err = e.retirements.Retire(ctx, req, now); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "credits retired",
			"serial", rec.Serial,
			"retiree", caller,
			"actions", len(rec.ActionIDs),
			"grams", rec.Total(),
		)
		for i, id := range rec.ActionIDs {
			if err := e.record(ctx, contracts.EventCreditsRetired, id, caller, now, map[string]any{
				"serial":      rec.Serial,
				"amount":      rec.Amounts[i],
				"beneficiary": rec.Beneficiary,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return rec, err
}

// Retirement returns the retirement with the given serial.
func (e *Engine) Retirement(ctx context.Context, serial uint64) (*contracts.Retirement, error) {
	var rec *contracts.Retirement
	err := e.view(func() (err error) {
		rec, err = e.retirements.Get(ctx, serial)
		return err
	})
	return rec, err
}

// Retired returns the grams already retired from an action.
func (e *Engine) Retired(ctx context.Context, actionID uint64) (uint64, error) {
	var n uint64
	err := e.view(func() (err error) {
		n, err = e.retirements.Retired(ctx, actionID)
		return err
	})
	return n, err
}
