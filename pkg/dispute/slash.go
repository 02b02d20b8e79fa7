package dispute

import "github.com/ecoproof/ecoproof/pkg/contracts"

// Slash is an optional bond seizure applied when a challenge is upheld.
// From defaults to the action's verifying account.
type Slash struct {
	Target string `json:"target"`
	Amount uint64 `json:"amount"`
	From   string `json:"from,omitempty"`
}

// Plan resolves defaults and validates s for an upheld challenge on a.
// It returns ok=false when there is nothing to transfer.
func (s *Slash) Plan(a *contracts.Action) (Slash, bool, error) {
	const op = "resolve_challenge"
	if s == nil || s.Amount == 0 {
		return Slash{}, false, nil
	}
	out := *s
	if out.From == "" {
		out.From = a.VerifyingAccount
	}
	if out.Target == "" {
		return Slash{}, false, contracts.Errorf(contracts.KindInvalidInput, op, "slash target is required")
	}
	if out.From == "" {
		return Slash{}, false, contracts.Errorf(contracts.KindInvalidInput, op, "slash source is unknown")
	}
	if out.From == out.Target {
		return Slash{}, false, contracts.Errorf(contracts.KindInvalidInput, op, "slash source and target are the same account")
	}
	return out, true, nil
}
