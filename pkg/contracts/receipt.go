package contracts

import "time"

// SettlementReceipt records the token issuance performed when an action is
// finalized. ContentHash covers every other field in canonical JSON form.
type SettlementReceipt struct {
	ReceiptID       string     `json:"receipt_id"`
	ActionID        uint64     `json:"action_id"`
	Submitter       string     `json:"submitter"`
	CreditType      CreditType `json:"credit_type"`
	Reward          uint64     `json:"reward"`
	SubmitterAmount uint64     `json:"submitter_amount"`
	ReserveAmount   uint64     `json:"reserve_amount"`
	ReserveAccount  string     `json:"reserve_account,omitempty"`
	Mode            BufferMode `json:"mode"`
	SettledAt       time.Time  `json:"settled_at"`
	ContentHash     string     `json:"content_hash,omitempty"`
}

// TotalIssued is the number of tokens minted by this settlement.
func (r *SettlementReceipt) TotalIssued() uint64 {
	return r.SubmitterAmount + r.ReserveAmount
}
