package engine

import (
	"context"
	"time"

	"github.com/ecoproof/ecoproof/pkg/bond"
	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// DepositBond credits the caller's native bond and returns the new balance.
func (e *Engine) DepositBond(ctx context.Context, caller string, amount uint64) (uint64, error) {
	return e.moveBond(ctx, "deposit_bond", caller, amount, contracts.EventBondDeposited, e.bonds.Deposit)
}

// WithdrawBond debits the caller's native bond and returns the new balance.
func (e *Engine) WithdrawBond(ctx context.Context, caller string, amount uint64) (uint64, error) {
	return e.moveBond(ctx, "withdraw_bond", caller, amount, contracts.EventBondWithdrawn, e.bonds.Withdraw)
}

func (e *Engine) moveBond(ctx context.Context, op, caller string, amount uint64, typ contracts.EventType,
	apply func(context.Context, bond.Book, string, uint64) (uint64, error)) (uint64, error) {
	var bal uint64
	err := e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := requireCaller(op, caller); err != nil {
			return err
		}
		var err error
		if bal, err = apply(ctx, bond.BookNative, caller, amount); err != nil {
			return err
		}
		return e.record(ctx, typ, 0, caller, now, balanceChange{Account: caller, Amount: amount, Balance: bal})
	})
	return bal, err
}

// DepositStake moves amount credit tokens from the caller into escrow and
// credits the caller's stake balance.
func (e *Engine) DepositStake(ctx context.Context, caller string, amount uint64) (uint64, error) {
	const op = "deposit_stake"
	var bal uint64
	err := e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := e.checkStaker(op, caller); err != nil {
			return err
		}
		if err := e.bonds.CheckDeposit(ctx, bond.BookStake, caller, amount); err != nil {
			return err
		}
		held, err := e.tokens.BalanceOf(ctx, caller)
		if err != nil {
			return err
		}
		if amount > held {
			return contracts.Errorf(contracts.KindInsufficientBalance, op, "stake %d exceeds token balance %d", amount, held)
		}

		if err := e.tokens.Transfer(ctx, caller, EscrowAccount, amount); err != nil {
			return err
		}
		if bal, err = e.bonds.Deposit(ctx, bond.BookStake, caller, amount); err != nil {
			return err
		}
		return e.record(ctx, contracts.EventStakeDeposited, 0, caller, now, balanceChange{Account: caller, Amount: amount, Balance: bal})
	})
	return bal, err
}

// WithdrawStake debits the caller's stake balance and returns the tokens from
// escrow.
func (e *Engine) WithdrawStake(ctx context.Context, caller string, amount uint64) (uint64, error) {
	const op = "withdraw_stake"
	var bal uint64
	err := e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := e.checkStaker(op, caller); err != nil {
			return err
		}
		if err := e.bonds.CheckWithdraw(ctx, bond.BookStake, caller, amount); err != nil {
			return err
		}

		if err := e.tokens.Transfer(ctx, EscrowAccount, caller, amount); err != nil {
			return err
		}
		var err error
		if bal, err = e.bonds.Withdraw(ctx, bond.BookStake, caller, amount); err != nil {
			return err
		}
		return e.record(ctx, contracts.EventStakeWithdrawn, 0, caller, now, balanceChange{Account: caller, Amount: amount, Balance: bal})
	})
	return bal, err
}

func (e *Engine) checkStaker(op, caller string) error {
	if err := requireCaller(op, caller); err != nil {
		return err
	}
	if caller == EscrowAccount {
		return contracts.Errorf(contracts.KindInvalidInput, op, "escrow account cannot stake")
	}
	return nil
}

// BondOf returns account's native bond balance.
func (e *Engine) BondOf(ctx context.Context, account string) (uint64, error) {
	var bal uint64
	err := e.view(func() (err error) {
		bal, err = e.bonds.Balance(ctx, bond.BookNative, account)
		return err
	})
	return bal, err
}

// StakeOf returns account's token stake balance.
func (e *Engine) StakeOf(ctx context.Context, account string) (uint64, error) {
	var bal uint64
	err := e.view(func() (err error) {
		bal, err = e.bonds.Balance(ctx, bond.BookStake, account)
		return err
	})
	return bal, err
}
