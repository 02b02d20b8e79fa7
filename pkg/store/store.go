// Package store persists the engine's action table: actions, their
// challenges, settlement receipts and the global parameter record.
package store

import (
	"context"
	"errors"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ActionStore is the durable state owned by the lifecycle engine.
// Returned records are copies; callers mutate them and write them back.
type ActionStore interface {
	// CreateAction assigns the next sequential id (starting at 1), stores a
	// and returns the id.
	CreateAction(ctx context.Context, a *contracts.Action) (uint64, error)
	GetAction(ctx context.Context, id uint64) (*contracts.Action, error)
	UpdateAction(ctx context.Context, a *contracts.Action) error
	ActionCount(ctx context.Context) (uint64, error)
	// ListActions returns up to limit actions with id > after, ascending.
	ListActions(ctx context.Context, after uint64, limit int) ([]*contracts.Action, error)

	// AppendChallenge stores c at the next index for its action and returns
	// that index.
	AppendChallenge(ctx context.Context, c *contracts.Challenge) (int, error)
	UpdateChallenge(ctx context.Context, c *contracts.Challenge) error
	Challenges(ctx context.Context, actionID uint64) ([]*contracts.Challenge, error)

	PutReceipt(ctx context.Context, r *contracts.SettlementReceipt) error
	Receipt(ctx context.Context, actionID uint64) (*contracts.SettlementReceipt, error)

	// LoadParams returns ErrNotFound until SaveParams has been called.
	LoadParams(ctx context.Context) (contracts.Params, error)
	SaveParams(ctx context.Context, p contracts.Params) error
}
