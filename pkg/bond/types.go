// Package bond provides the stake and bonding ledger: two independent
// per-account books of pooled balances used to gate privileged operations
// and to hold funds seizable on adverse dispute rulings.
//
// The ledger does not earmark balances to individual actions. Callers check
// a minimum balance at call time with Require.
package bond

import (
	"context"
	"math"
)

// Book selects one of the independent balance maps.
type Book string

const (
	// BookNative holds native-currency bonds used for submit, verify and
	// challenge minimum-bond checks and for slashing.
	BookNative Book = "native"
	// BookStake holds credit-token stake. It is never consulted by bond
	// checks and is not interchangeable with BookNative.
	BookStake Book = "stake"
)

func (b Book) valid() bool { return b == BookNative || b == BookStake }

// MaxBalance is the largest balance any backend is required to hold.
const MaxBalance = math.MaxInt64

// Storage handles persistence of balances.
type Storage interface {
	// Balance returns the balance of account in book, zero if unknown.
	Balance(ctx context.Context, book Book, account string) (uint64, error)
	// SetBalances writes absolute balances for every account in the map
	// atomically.
	SetBalances(ctx context.Context, book Book, balances map[string]uint64) error
}
