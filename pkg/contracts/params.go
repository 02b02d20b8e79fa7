package contracts

import "time"

// MaxBasisPoints is the denominator of every basis-point quantity.
const MaxBasisPoints = 10_000

// BufferMode selects how the risk-reserve buffer is funded for Removal credits.
type BufferMode string

const (
	// BufferSplit carves the reserve out of the authorized reward, so
	// reserve + submitter amount == reward.
	BufferSplit BufferMode = "split"
	// BufferAdditive pays the full reward to the submitter and mints the
	// reserve on top of it.
	BufferAdditive BufferMode = "additive"
)

// Params is the single admin-mutable global configuration record.
type Params struct {
	InstantSettlement       bool       `json:"instant_settlement" yaml:"instant_settlement"`
	ChallengeWindowSeconds  uint64     `json:"challenge_window_seconds" yaml:"challenge_window_seconds"`
	BufferBasisPoints       uint32     `json:"buffer_basis_points" yaml:"buffer_basis_points"`
	BufferReserveAccount    string     `json:"buffer_reserve_account" yaml:"buffer_reserve_account"`
	BufferMode              BufferMode `json:"buffer_mode,omitempty" yaml:"buffer_mode,omitempty"`
	MinimumSubmitBond       uint64     `json:"minimum_submit_bond" yaml:"minimum_submit_bond"`
	MinimumVerifyBond       uint64     `json:"minimum_verify_bond" yaml:"minimum_verify_bond"`
	MinimumChallengeBond    uint64     `json:"minimum_challenge_bond" yaml:"minimum_challenge_bond"`
	RequireActiveReferences bool       `json:"require_active_references,omitempty" yaml:"require_active_references,omitempty"`
}

// DefaultParams mirrors a freshly deployed engine: settlement waits for a
// two-day challenge window and no bonds are required.
func DefaultParams() Params {
	return Params{
		ChallengeWindowSeconds: 172_800,
		BufferMode:             BufferSplit,
	}
}

// ChallengeWindow returns the window as a duration.
func (p Params) ChallengeWindow() time.Duration {
	return time.Duration(p.ChallengeWindowSeconds) * time.Second
}

// Mode returns the effective buffer mode; the zero value means split.
func (p Params) Mode() BufferMode {
	if p.BufferMode == "" {
		return BufferSplit
	}
	return p.BufferMode
}

// Validate rejects out-of-range basis points, an unknown buffer mode and a
// non-zero buffer without a reserve account.
func (p Params) Validate() error {
	const op = "set_config"
	if p.BufferBasisPoints > MaxBasisPoints {
		return Errorf(KindInvalidInput, op, "buffer basis points %d exceeds %d", p.BufferBasisPoints, MaxBasisPoints)
	}
	switch p.Mode() {
	case BufferSplit, BufferAdditive:
	default:
		return Errorf(KindInvalidInput, op, "unknown buffer mode %q", p.BufferMode)
	}
	if p.BufferBasisPoints > 0 && p.BufferReserveAccount == "" {
		return Errorf(KindInvalidInput, op, "buffer reserve account is required when buffer basis points > 0")
	}
	// Guards time.Duration overflow in ChallengeWindow.
	if p.ChallengeWindowSeconds > uint64(1<<63-1)/uint64(time.Second) {
		return Errorf(KindInvalidInput, op, "challenge window too large")
	}
	return nil
}
