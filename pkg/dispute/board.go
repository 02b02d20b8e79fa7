// Package dispute manages challenges raised against verified actions and
// their resolution by the admin.
//
// Challenges are append-only per action and immutable once resolved. A
// single upheld challenge decides the action's fate regardless of how many
// others were dismissed.
package dispute

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// Store persists challenges. pkg/store provides the implementations.
type Store interface {
	AppendChallenge(ctx context.Context, c *contracts.Challenge) (int, error)
	UpdateChallenge(ctx context.Context, c *contracts.Challenge) error
	Challenges(ctx context.Context, actionID uint64) ([]*contracts.Challenge, error)
}

// Verdict summarizes the challenges on an action at a point in time.
type Verdict int

const (
	// VerdictClear means no challenge is pending and none was upheld.
	VerdictClear Verdict = iota
	// VerdictPending means at least one challenge awaits resolution and none
	// was upheld.
	VerdictPending
	// VerdictUpheld means at least one challenge was upheld.
	VerdictUpheld
)

func (v Verdict) String() string {
	switch v {
	case VerdictClear:
		return "clear"
	case VerdictPending:
		return "pending"
	case VerdictUpheld:
		return "upheld"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// Evaluate folds challenges into a verdict. Upheld dominates pending.
func Evaluate(challenges []*contracts.Challenge) Verdict {
	v := VerdictClear
	for _, c := range challenges {
		if c.Resolved && c.Upheld {
			return VerdictUpheld
		}
		if !c.Resolved {
			v = VerdictPending
		}
	}
	return v
}

// Board applies challenge rules on top of a Store.
type Board struct {
	store  Store
	logger *slog.Logger
}

func NewBoard(s Store) *Board {
	return &Board{
		store:  s,
		logger: slog.Default().With("component", "dispute"),
	}
}

// CheckRaise validates a new challenge: the action must be Verified and the
// window still open (now < verifiedAt + window).
func CheckRaise(a *contracts.Action, challenger string, now time.Time, window time.Duration) error {
	const op = "challenge"
	if challenger == "" {
		return contracts.Errorf(contracts.KindInvalidInput, op, "challenger is required")
	}
	if a.Status != contracts.StatusVerified {
		return contracts.Errorf(contracts.KindInvalidState, op, "action %d is not VERIFIED (status=%s)", a.ID, a.Status)
	}
	if deadline := a.ChallengeDeadline(window); !now.Before(deadline) {
		return contracts.Errorf(contracts.KindInvalidState, op, "challenge window for action %d closed at %s", a.ID, deadline.UTC().Format(time.RFC3339))
	}
	return nil
}

// Raise appends a challenge after CheckRaise passes.
func (b *Board) Raise(ctx context.Context, a *contracts.Action, challenger, evidence string, now time.Time, window time.Duration) (*contracts.Challenge, error) {
	if err := CheckRaise(a, challenger, now, window); err != nil {
		return nil, err
	}
	c := &contracts.Challenge{
		ActionID:          a.ID,
		Challenger:        challenger,
		EvidenceReference: evidence,
		RaisedAt:          now,
	}
	idx, err := b.store.AppendChallenge(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("dispute: append challenge: %w", err)
	}
	c.Index = idx
	b.logger.InfoContext(ctx, "challenge raised", "action_id", a.ID, "index", idx, "challenger", challenger)
	return c, nil
}

// Pending returns the challenge at index if it exists and is unresolved.
func (b *Board) Pending(ctx context.Context, actionID uint64, index int) (*contracts.Challenge, error) {
	const op = "resolve_challenge"
	list, err := b.List(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(list) {
		return nil, contracts.Errorf(contracts.KindNotFound, op, "action %d has no challenge %d", actionID, index)
	}
	c := list[index]
	if c.Resolved {
		return nil, contracts.Errorf(contracts.KindInvalidState, op, "%s is already resolved", c)
	}
	return c, nil
}

// Resolve records the outcome of a pending challenge.
func (b *Board) Resolve(ctx context.Context, c *contracts.Challenge, upheld bool, by string, now time.Time) error {
	c.Resolved = true
	c.Upheld = upheld
	c.ResolvedBy = by
	c.ResolvedAt = now
	if err := b.store.UpdateChallenge(ctx, c); err != nil {
		return fmt.Errorf("dispute: update challenge: %w", err)
	}
	b.logger.InfoContext(ctx, "challenge resolved", "action_id", c.ActionID, "index", c.Index, "upheld", upheld)
	return nil
}

func (b *Board) List(ctx context.Context, actionID uint64) ([]*contracts.Challenge, error) {
	list, err := b.store.Challenges(ctx, actionID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list challenges: %w", err)
	}
	return list, nil
}

// Verdict evaluates the stored challenges for an action.
func (b *Board) Verdict(ctx context.Context, actionID uint64) (Verdict, error) {
	list, err := b.List(ctx, actionID)
	if err != nil {
		return VerdictClear, err
	}
	return Evaluate(list), nil
}
