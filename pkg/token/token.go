// Package token implements the fungible credit token issued on settlement.
// Issuance only happens through Mint; balances otherwise move by Transfer.
package token

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// ErrInsufficientFunds is returned by a Storage when a transfer source is short.
var ErrInsufficientFunds = errors.New("insufficient token balance")

// MaxSupply bounds total issuance so every backend can hold it.
const MaxSupply = math.MaxInt64

// Credit is one mint instruction.
type Credit struct {
	Account string
	Amount  uint64
}

// Storage persists balances and total supply.
type Storage interface {
	Balance(ctx context.Context, account string) (uint64, error)
	TotalSupply(ctx context.Context) (uint64, error)
	// Mint applies all credits and raises total supply atomically.
	Mint(ctx context.Context, credits []Credit) error
	// Transfer moves amount atomically or returns ErrInsufficientFunds.
	Transfer(ctx context.Context, from, to string, amount uint64) error
}

// Ledger validates token movements before handing them to storage.
type Ledger struct {
	storage Storage
}

func NewLedger(s Storage) *Ledger {
	return &Ledger{storage: s}
}

func (l *Ledger) BalanceOf(ctx context.Context, account string) (uint64, error) {
	bal, err := l.storage.Balance(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("token: balance: %w", err)
	}
	return bal, nil
}

func (l *Ledger) TotalSupply(ctx context.Context) (uint64, error) {
	s, err := l.storage.TotalSupply(ctx)
	if err != nil {
		return 0, fmt.Errorf("token: supply: %w", err)
	}
	return s, nil
}

// CheckMint verifies that credits can be minted without exceeding MaxSupply.
// Zero-amount credits are allowed and skipped.
func (l *Ledger) CheckMint(ctx context.Context, credits []Credit) error {
	const op = "mint"
	var total uint64
	for _, c := range credits {
		if c.Amount == 0 {
			continue
		}
		if c.Account == "" {
			return contracts.Errorf(contracts.KindInvalidInput, op, "mint recipient is required")
		}
		if c.Amount > MaxSupply-total {
			return contracts.Errorf(contracts.KindInvalidInput, op, "mint exceeds maximum supply")
		}
		total += c.Amount
	}
	supply, err := l.TotalSupply(ctx)
	if err != nil {
		return err
	}
	if total > MaxSupply-supply {
		return contracts.Errorf(contracts.KindInvalidInput, op, "mint of %d exceeds maximum supply", total)
	}
	return nil
}

// Mint issues new tokens. Zero-amount credits are dropped.
func (l *Ledger) Mint(ctx context.Context, credits []Credit) error {
	if err := l.CheckMint(ctx, credits); err != nil {
		return err
	}
	nonZero := make([]Credit, 0, len(credits))
	for _, c := range credits {
		if c.Amount > 0 {
			nonZero = append(nonZero, c)
		}
	}
	if len(nonZero) == 0 {
		return nil
	}
	if err := l.storage.Mint(ctx, nonZero); err != nil {
		return fmt.Errorf("token: mint: %w", err)
	}
	return nil
}

// Transfer moves tokens between accounts.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount uint64) error {
	const op = "token_transfer"
	if from == "" || to == "" {
		return contracts.Errorf(contracts.KindInvalidInput, op, "source and destination are required")
	}
	if amount == 0 {
		return contracts.Errorf(contracts.KindInvalidInput, op, "amount must be positive")
	}
	err := l.storage.Transfer(ctx, from, to, amount)
	if errors.Is(err, ErrInsufficientFunds) {
		return contracts.Errorf(contracts.KindInsufficientBalance, op, "%s holds less than %d", from, amount)
	}
	if err != nil {
		return fmt.Errorf("token: transfer: %w", err)
	}
	return nil
}
