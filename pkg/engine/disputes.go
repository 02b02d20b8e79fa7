package engine

import (
	"context"
	"time"

	"github.com/ecoproof/ecoproof/pkg/bond"
	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/ecoproof/ecoproof/pkg/dispute"
)

// Challenge disputes a VERIFIED action inside its window and returns the
// challenge index.
func (e *Engine) Challenge(ctx context.Context, caller string, actionID uint64, evidence string) (int, error) {
	const op = "challenge"
	var index int
	err := e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := requireCaller(op, caller); err != nil {
			return err
		}
		a, err := e.loadAction(ctx, op, actionID)
		if err != nil {
			return err
		}
		window := e.params.ChallengeWindow()
		if err := dispute.CheckRaise(a, caller, now, window); err != nil {
			return err
		}
		if err := e.bonds.Require(ctx, bond.BookNative, caller, e.params.MinimumChallengeBond, op); err != nil {
			return err
		}

		c, err := e.disputes.Raise(ctx, a, caller, evidence, now, window)
		if err != nil {
			return err
		}
		index = c.Index
		return e.record(ctx, contracts.EventChallengeRaised, a.ID, caller, now, c)
	})
	return index, err
}

// ResolveChallenge records the admin's ruling on a pending challenge. When
// upheld and slash is non-empty, the slash is applied to the native bond
// book. slash is ignored for dismissals.
func (e *Engine) ResolveChallenge(ctx context.Context, caller string, actionID uint64, index int, upheld bool, slash *dispute.Slash) error {
	const op = "resolve_challenge"
	return e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := e.roles.RequireAdmin(ctx, caller, op); err != nil {
			return err
		}
		a, err := e.loadAction(ctx, op, actionID)
		if err != nil {
			return err
		}
		c, err := e.disputes.Pending(ctx, a.ID, index)
		if err != nil {
			return err
		}
		var (
			plan     dispute.Slash
			slashing bool
		)
		if upheld {
			if plan, slashing, err = slash.Plan(a); err != nil {
				return err
			}
			if slashing {
				if err := e.bonds.CheckTransfer(ctx, bond.BookNative, plan.From, plan.Target, plan.Amount); err != nil {
					return err
				}
			}
		}

		if err := e.disputes.Resolve(ctx, c, upheld, caller, now); err != nil {
			return err
		}
		if slashing {
			if err := e.bonds.Transfer(ctx, bond.BookNative, plan.From, plan.Target, plan.Amount); err != nil {
				return err
			}
			e.logger.InfoContext(ctx, "bond slashed",
				"action_id", a.ID,
				"from", plan.From,
				"to", plan.Target,
				"amount", plan.Amount,
			)
		}
		if err := e.record(ctx, contracts.EventChallengeResolved, a.ID, caller, now, c); err != nil {
			return err
		}
		if slashing {
			return e.record(ctx, contracts.EventBondSlashed, a.ID, caller, now, plan)
		}
		return nil
	})
}
