// Package settlement computes and executes token issuance for finalized
// actions, including the risk-reserve buffer for Removal credits.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ecoproof/ecoproof/pkg/canonicalize"
	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/ecoproof/ecoproof/pkg/token"
)

// Minter issues credit tokens. *token.Ledger satisfies it.
type Minter interface {
	CheckMint(ctx context.Context, credits []token.Credit) error
	Mint(ctx context.Context, credits []token.Credit) error
}

// Settler turns a finalized action into minted tokens and a receipt.
type Settler struct {
	minter Minter
	logger *slog.Logger
}

func NewSettler(m Minter) *Settler {
	return &Settler{
		minter: m,
		logger: slog.Default().With("component", "settlement"),
	}
}

// Prepare computes the settlement for a and checks that it can be minted.
// Nothing is written.
func (s *Settler) Prepare(ctx context.Context, a *contracts.Action, p contracts.Params, now time.Time) (*contracts.SettlementReceipt, error) {
	split := Compute(a.RewardPending, a.CreditType, p.BufferBasisPoints, p.Mode())
	r := &contracts.SettlementReceipt{
		ReceiptID:       uuid.New().String(),
		ActionID:        a.ID,
		Submitter:       a.Submitter,
		CreditType:      a.CreditType,
		Reward:          a.RewardPending,
		SubmitterAmount: split.Submitter,
		ReserveAmount:   split.Reserve,
		Mode:            p.Mode(),
		SettledAt:       now,
	}
	if split.Reserve > 0 {
		r.ReserveAccount = p.BufferReserveAccount
	}
	if err := s.minter.CheckMint(ctx, credits(r)); err != nil {
		return nil, err
	}
	hash, err := ReceiptHash(r)
	if err != nil {
		return nil, err
	}
	r.ContentHash = hash
	return r, nil
}

// Execute mints the tokens described by a prepared receipt.
func (s *Settler) Execute(ctx context.Context, r *contracts.SettlementReceipt) error {
	if err := s.minter.Mint(ctx, credits(r)); err != nil {
		return fmt.Errorf("settlement: mint for action %d: %w", r.ActionID, err)
	}
	s.logger.InfoContext(ctx, "settlement executed",
		"action_id", r.ActionID,
		"submitter_amount", r.SubmitterAmount,
		"reserve_amount", r.ReserveAmount,
		"mode", r.Mode,
	)
	return nil
}

// ReceiptHash is the sha256 content hash of r's canonical JSON with the
// ContentHash field cleared.
func ReceiptHash(r *contracts.SettlementReceipt) (string, error) {
	cp := *r
	cp.ContentHash = ""
	h, err := canonicalize.ContentHash(cp)
	if err != nil {
		return "", fmt.Errorf("settlement: hash receipt: %w", err)
	}
	return h, nil
}

// VerifyReceipt reports whether r's content hash matches its fields.
func VerifyReceipt(r *contracts.SettlementReceipt) (bool, error) {
	h, err := ReceiptHash(r)
	if err != nil {
		return false, err
	}
	return h == r.ContentHash, nil
}

func credits(r *contracts.SettlementReceipt) []token.Credit {
	out := []token.Credit{{Account: r.Submitter, Amount: r.SubmitterAmount}}
	if r.ReserveAmount > 0 {
		out = append(out, token.Credit{Account: r.ReserveAccount, Amount: r.ReserveAmount})
	}
	return out
}
