//go:build property
// +build property

package bond_test

import (
	"context"
	"testing"

	"github.com/ecoproof/ecoproof/pkg/bond"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: Deposit(X) followed by Withdraw(X) restores the prior balance.
func TestDepositWithdrawIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("deposit then withdraw restores balance", prop.ForAll(
		func(initial, x uint64) bool {
			ctx := context.Background()
			l := bond.NewLedger(bond.NewMemoryStorage())
			if initial > 0 {
				if _, err := l.Deposit(ctx, bond.BookNative, "acct", initial); err != nil {
					return false
				}
			}
			if _, err := l.Deposit(ctx, bond.BookNative, "acct", x); err != nil {
				return false
			}
			bal, err := l.Withdraw(ctx, bond.BookNative, "acct", x)
			return err == nil && bal == initial
		},
		gen.UInt64Range(0, 1<<40),
		gen.UInt64Range(1, 1<<40),
	))

	// Property: withdrawing more than the balance always fails and never underflows.
	properties.Property("over-withdraw fails", prop.ForAll(
		func(balance, extra uint64) bool {
			ctx := context.Background()
			l := bond.NewLedger(bond.NewMemoryStorage())
			if _, err := l.Deposit(ctx, bond.BookNative, "acct", balance); err != nil {
				return false
			}
			if _, err := l.Withdraw(ctx, bond.BookNative, "acct", balance+extra); err == nil {
				return false
			}
			after, err := l.Balance(ctx, bond.BookNative, "acct")
			return err == nil && after == balance
		},
		gen.UInt64Range(1, 1<<40),
		gen.UInt64Range(1, 1<<40),
	))

	properties.TestingRun(t)
}
