package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/ecoproof/ecoproof/pkg/store"
)

// Action returns a copy of the action.
func (e *Engine) Action(ctx context.Context, id uint64) (*contracts.Action, error) {
	var a *contracts.Action
	err := e.view(func() (err error) {
		a, err = e.loadAction(ctx, "get_action", id)
		return err
	})
	return a, err
}

// Actions pages through actions in id order, starting after the given id.
func (e *Engine) Actions(ctx context.Context, after uint64, limit int) ([]*contracts.Action, error) {
	var list []*contracts.Action
	err := e.view(func() (err error) {
		list, err = e.actions.ListActions(ctx, after, limit)
		if err != nil {
			return fmt.Errorf("engine: list actions: %w", err)
		}
		return nil
	})
	return list, err
}

// Challenges returns every challenge raised against the action, in order.
func (e *Engine) Challenges(ctx context.Context, actionID uint64) ([]*contracts.Challenge, error) {
	var list []*contracts.Challenge
	err := e.view(func() error {
		if _, err := e.loadAction(ctx, "get_challenges", actionID); err != nil {
			return err
		}
		var err error
		list, err = e.disputes.List(ctx, actionID)
		return err
	})
	return list, err
}

func (e *Engine) ActionCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := e.view(func() (err error) {
		n, err = e.actions.ActionCount(ctx)
		return err
	})
	return n, err
}

// Config returns the current global parameters.
func (e *Engine) Config() contracts.Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Receipt returns the settlement receipt of a finalized action.
func (e *Engine) Receipt(ctx context.Context, actionID uint64) (*contracts.SettlementReceipt, error) {
	var r *contracts.SettlementReceipt
	err := e.view(func() error {
		var err error
		r, err = e.actions.Receipt(ctx, actionID)
		if errors.Is(err, store.ErrNotFound) {
			return contracts.Errorf(contracts.KindNotFound, "get_receipt", "action %d has no settlement receipt", actionID)
		}
		return err
	})
	return r, err
}

func (e *Engine) TokenBalance(ctx context.Context, account string) (uint64, error) {
	var bal uint64
	err := e.view(func() (err error) {
		bal, err = e.tokens.BalanceOf(ctx, account)
		return err
	})
	return bal, err
}

func (e *Engine) TotalSupply(ctx context.Context) (uint64, error) {
	var n uint64
	err := e.view(func() (err error) {
		n, err = e.tokens.TotalSupply(ctx)
		return err
	})
	return n, err
}

// Members lists the accounts holding role.
func (e *Engine) Members(ctx context.Context, role contracts.Role) ([]string, error) {
	var out []string
	err := e.view(func() (err error) {
		out, err = e.roles.Members(ctx, role)
		return err
	})
	return out, err
}

func (e *Engine) Admin(ctx context.Context) (string, error) {
	var admin string
	err := e.view(func() (err error) {
		admin, err = e.roles.Admin(ctx)
		return err
	})
	return admin, err
}

func (e *Engine) Reference(ctx context.Context, id contracts.RefID) (contracts.Reference, error) {
	var ref contracts.Reference
	err := e.view(func() (err error) {
		ref, err = e.references.Get(ctx, id)
		return err
	})
	return ref, err
}

func (e *Engine) References(ctx context.Context) ([]contracts.Reference, error) {
	var refs []contracts.Reference
	err := e.view(func() (err error) {
		refs, err = e.references.List(ctx)
		return err
	})
	return refs, err
}
