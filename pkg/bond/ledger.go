package bond

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// Ledger applies deposit, withdrawal and transfer rules on top of a Storage.
// It performs every check before writing, so a rejected call leaves balances
// untouched.
type Ledger struct {
	storage Storage
	logger  *slog.Logger
}

// NewLedger creates a ledger over the given storage.
func NewLedger(s Storage) *Ledger {
	return &Ledger{
		storage: s,
		logger:  slog.Default().With("component", "bond"),
	}
}

// Balance returns the current balance of account in book.
func (l *Ledger) Balance(ctx context.Context, book Book, account string) (uint64, error) {
	if !book.valid() {
		return 0, contracts.Errorf(contracts.KindInvalidInput, "balance", "unknown book %q", book)
	}
	bal, err := l.storage.Balance(ctx, book, account)
	if err != nil {
		return 0, fmt.Errorf("bond: read %s balance: %w", book, err)
	}
	return bal, nil
}

// CheckDeposit reports whether Deposit would succeed without writing.
func (l *Ledger) CheckDeposit(ctx context.Context, book Book, account string, amount uint64) error {
	_, err := l.planDeposit(ctx, book, account, amount)
	return err
}

// Deposit credits amount to account and returns the new balance.
func (l *Ledger) Deposit(ctx context.Context, book Book, account string, amount uint64) (uint64, error) {
	next, err := l.planDeposit(ctx, book, account, amount)
	if err != nil {
		return 0, err
	}
	if err := l.storage.SetBalances(ctx, book, map[string]uint64{account: next}); err != nil {
		return 0, fmt.Errorf("bond: persist deposit: %w", err)
	}
	l.logger.DebugContext(ctx, "deposit", "book", book, "account", account, "amount", amount, "balance", next)
	return next, nil
}

func (l *Ledger) planDeposit(ctx context.Context, book Book, account string, amount uint64) (uint64, error) {
	const op = "deposit"
	if err := l.checkArgs(op, book, account, amount); err != nil {
		return 0, err
	}
	bal, err := l.Balance(ctx, book, account)
	if err != nil {
		return 0, err
	}
	if amount > MaxBalance-bal {
		return 0, contracts.Errorf(contracts.KindInvalidInput, op, "deposit of %d would overflow balance %d", amount, bal)
	}
	return bal + amount, nil
}

// CheckWithdraw reports whether Withdraw would succeed without writing.
func (l *Ledger) CheckWithdraw(ctx context.Context, book Book, account string, amount uint64) error {
	_, err := l.planWithdraw(ctx, book, account, amount)
	return err
}

// Withdraw debits amount from account and returns the new balance.
func (l *Ledger) Withdraw(ctx context.Context, book Book, account string, amount uint64) (uint64, error) {
	next, err := l.planWithdraw(ctx, book, account, amount)
	if err != nil {
		return 0, err
	}
	if err := l.storage.SetBalances(ctx, book, map[string]uint64{account: next}); err != nil {
		return 0, fmt.Errorf("bond: persist withdrawal: %w", err)
	}
	l.logger.DebugContext(ctx, "withdraw", "book", book, "account", account, "amount", amount, "balance", next)
	return next, nil
}

func (l *Ledger) planWithdraw(ctx context.Context, book Book, account string, amount uint64) (uint64, error) {
	const op = "withdraw"
	if err := l.checkArgs(op, book, account, amount); err != nil {
		return 0, err
	}
	bal, err := l.Balance(ctx, book, account)
	if err != nil {
		return 0, err
	}
	if amount > bal {
		return 0, contracts.Errorf(contracts.KindInsufficientBalance, op, "withdraw %d exceeds balance %d", amount, bal)
	}
	return bal - amount, nil
}

// CheckTransfer reports whether Transfer would succeed without writing.
func (l *Ledger) CheckTransfer(ctx context.Context, book Book, from, to string, amount uint64) error {
	_, _, err := l.planTransfer(ctx, book, from, to, amount)
	return err
}

// Transfer moves amount from one account to another inside book. It is the
// primitive behind slashing.
func (l *Ledger) Transfer(ctx context.Context, book Book, from, to string, amount uint64) error {
	fromBal, toBal, err := l.planTransfer(ctx, book, from, to, amount)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	balances := map[string]uint64{from: fromBal - amount, to: toBal + amount}
	if err := l.storage.SetBalances(ctx, book, balances); err != nil {
		return fmt.Errorf("bond: persist transfer: %w", err)
	}
	l.logger.DebugContext(ctx, "transfer", "book", book, "from", from, "to", to, "amount", amount)
	return nil
}

func (l *Ledger) planTransfer(ctx context.Context, book Book, from, to string, amount uint64) (uint64, uint64, error) {
	const op = "transfer"
	if err := l.checkArgs(op, book, from, amount); err != nil {
		return 0, 0, err
	}
	if to == "" {
		return 0, 0, contracts.Errorf(contracts.KindInvalidInput, op, "destination account is required")
	}
	fromBal, err := l.Balance(ctx, book, from)
	if err != nil {
		return 0, 0, err
	}
	if amount > fromBal {
		return 0, 0, contracts.Errorf(contracts.KindInsufficientBalance, op, "transfer %d exceeds balance %d of %s", amount, fromBal, from)
	}
	toBal, err := l.Balance(ctx, book, to)
	if err != nil {
		return 0, 0, err
	}
	if from != to && amount > MaxBalance-toBal {
		return 0, 0, contracts.Errorf(contracts.KindInvalidInput, op, "transfer would overflow balance of %s", to)
	}
	return fromBal, toBal, nil
}

// Require fails with INSUFFICIENT_BOND when minimum is configured and the
// account's balance in book is below it. A zero minimum disables the check.
func (l *Ledger) Require(ctx context.Context, book Book, account string, minimum uint64, op string) error {
	if minimum == 0 {
		return nil
	}
	bal, err := l.Balance(ctx, book, account)
	if err != nil {
		return err
	}
	if bal < minimum {
		return contracts.Errorf(contracts.KindInsufficientBond, op, "%s bond %d below minimum %d", book, bal, minimum)
	}
	return nil
}

func (l *Ledger) checkArgs(op string, book Book, account string, amount uint64) error {
	if !book.valid() {
		return contracts.Errorf(contracts.KindInvalidInput, op, "unknown book %q", book)
	}
	if account == "" {
		return contracts.Errorf(contracts.KindInvalidInput, op, "account is required")
	}
	if amount == 0 {
		return contracts.Errorf(contracts.KindInvalidInput, op, "amount must be positive")
	}
	return nil
}
