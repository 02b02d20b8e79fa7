package settlement

import (
	"math/bits"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// Split is the distribution of one settlement.
type Split struct {
	Submitter uint64
	Reserve   uint64
}

// Total is the number of tokens the split mints.
func (s Split) Total() uint64 { return s.Submitter + s.Reserve }

// ReserveOf returns floor(reward * bps / 10000) without intermediate
// overflow. bps must be at most MaxBasisPoints.
func ReserveOf(reward uint64, bps uint32) uint64 {
	hi, lo := bits.Mul64(reward, uint64(bps))
	q, _ := bits.Div64(hi, lo, contracts.MaxBasisPoints)
	return q
}

// Compute distributes reward for an action of creditType. Only Removal
// credits carry a buffer. In split mode reserve + submitter == reward; in
// additive mode the submitter receives the full reward and the reserve is
// issued on top.
func Compute(reward uint64, creditType contracts.CreditType, bps uint32, mode contracts.BufferMode) Split {
	if creditType != contracts.CreditRemoval || bps == 0 {
		return Split{Submitter: reward}
	}
	reserve := ReserveOf(reward, bps)
	if mode == contracts.BufferAdditive {
		return Split{Submitter: reward, Reserve: reserve}
	}
	return Split{Submitter: reward - reserve, Reserve: reserve}
}
