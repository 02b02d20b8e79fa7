package contracts

import "time"

// Retirement permanently removes finalized credit quantity from circulation.
type Retirement struct {
	Serial      uint64    `json:"serial"`
	Retiree     string    `json:"retiree"`
	ActionIDs   []uint64  `json:"action_ids"`
	Amounts     []uint64  `json:"amounts"`
	Reason      string    `json:"reason"`
	Beneficiary string    `json:"beneficiary"`
	RetiredAt   time.Time `json:"retired_at"`
}

// Total is the sum of retired grams across all actions in the retirement.
func (r *Retirement) Total() uint64 {
	var sum uint64
	for _, a := range r.Amounts {
		sum += a
	}
	return sum
}
