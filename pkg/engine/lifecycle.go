package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/ecoproof/ecoproof/pkg/bond"
	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/ecoproof/ecoproof/pkg/dispute"
	"github.com/ecoproof/ecoproof/pkg/token"
)

// Submit records a new claim in SUBMITTED and returns its id.
func (e *Engine) Submit(ctx context.Context, caller string, c contracts.Claim) (uint64, error) {
	const op = "submit"
	var id uint64
	err := e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := requireCaller(op, caller); err != nil {
			return err
		}
		c.Description = norm.NFC.String(c.Description)
		c.ProofReference = norm.NFC.String(c.ProofReference)
		c.Metadata = norm.NFC.String(c.Metadata)

		if c.Quantity == 0 {
			return contracts.Errorf(contracts.KindInvalidInput, op, "quantity must be positive")
		}
		if !c.CreditType.Valid() {
			return contracts.Errorf(contracts.KindInvalidInput, op, "unknown credit type %q", c.CreditType)
		}
		if err := e.bonds.Require(ctx, bond.BookNative, caller, e.params.MinimumSubmitBond, op); err != nil {
			return err
		}
		if e.params.RequireActiveReferences {
			if err := e.references.RequireActive(ctx, op, c.MethodologyID, c.ProjectID, c.BaselineID); err != nil {
				return err
			}
		}
		if err := e.policy.Admit(caller, c); err != nil {
			return err
		}

		a := &contracts.Action{
			Submitter:   caller,
			Claim:       c,
			Status:      contracts.StatusSubmitted,
			SubmittedAt: now,
		}
		var err error
		if id, err = e.actions.CreateAction(ctx, a); err != nil {
			return fmt.Errorf("engine: create action: %w", err)
		}
		a.ID = id
		e.logger.InfoContext(ctx, "action submitted",
			"action_id", id,
			"submitter", caller,
			"credit_type", c.CreditType,
			"quantity", c.Quantity,
		)
		return e.record(ctx, contracts.EventActionSubmitted, id, caller, now, a)
	})
	return id, err
}

// AttachOracleReport appends an oracle reference to a non-terminal action.
func (e *Engine) AttachOracleReport(ctx context.Context, caller string, actionID uint64, reference string) error {
	const op = "attach_oracle_report"
	return e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := e.roles.RequireOracle(ctx, caller, op); err != nil {
			return err
		}
		if reference == "" {
			return contracts.Errorf(contracts.KindInvalidInput, op, "report reference is required")
		}
		a, err := e.loadAction(ctx, op, actionID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return contracts.Errorf(contracts.KindInvalidState, op, "action %d is %s", a.ID, a.Status)
		}

		a.OracleReports = append(a.OracleReports, reference)
		if err := e.saveAction(ctx, a); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "oracle report attached", "action_id", a.ID, "oracle", caller, "reports", len(a.OracleReports))
		return e.record(ctx, contracts.EventOracleReported, a.ID, caller, now, map[string]any{
			"reference": reference,
			"index":     len(a.OracleReports) - 1,
		})
	})
}

// Verify authorizes reward for a SUBMITTED action. With instant settlement the
// action is settled and FINALIZED in the same call.
func (e *Engine) Verify(ctx context.Context, caller string, actionID, reward uint64) error {
	const op = "verify"
	return e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := e.roles.RequireVerifier(ctx, caller, op); err != nil {
			return err
		}
		a, err := e.loadAction(ctx, op, actionID)
		if err != nil {
			return err
		}
		if a.Status != contracts.StatusSubmitted {
			return contracts.Errorf(contracts.KindInvalidState, op, "action %d is not SUBMITTED (status=%s)", a.ID, a.Status)
		}
		if err := e.bonds.Require(ctx, bond.BookNative, caller, e.params.MinimumVerifyBond, op); err != nil {
			return err
		}
		if reward > token.MaxSupply {
			return contracts.Errorf(contracts.KindInvalidInput, op, "reward %d exceeds maximum supply", reward)
		}

		a.RewardPending = reward
		a.VerifiedAt = now
		a.VerifyingAccount = caller
		a.Status = contracts.StatusVerified

		if e.params.InstantSettlement {
			return e.settle(ctx, a, caller, now, true)
		}
		if err := e.saveAction(ctx, a); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "action verified",
			"action_id", a.ID,
			"verifier", caller,
			"reward_pending", reward,
			"challenge_deadline", a.ChallengeDeadline(e.params.ChallengeWindow()),
		)
		return e.record(ctx, contracts.EventActionVerified, a.ID, caller, now, map[string]any{
			"reward_pending": reward,
			"verified_at":    now.UTC(),
		})
	})
}

// Finalize settles or rejects a VERIFIED action once its challenge window has
// elapsed. An upheld challenge rejects; an unresolved one blocks.
func (e *Engine) Finalize(ctx context.Context, caller string, actionID uint64) (contracts.ActionStatus, error) {
	const op = "finalize"
	var status contracts.ActionStatus
	err := e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		a, err := e.loadAction(ctx, op, actionID)
		if err != nil {
			return err
		}
		if a.Status != contracts.StatusVerified {
			return contracts.Errorf(contracts.KindInvalidState, op, "action %d is not VERIFIED (status=%s)", a.ID, a.Status)
		}
		if deadline := a.ChallengeDeadline(e.params.ChallengeWindow()); now.Before(deadline) {
			return contracts.Errorf(contracts.KindInvalidState, op, "challenge window for action %d open until %s", a.ID, deadline.UTC().Format(time.RFC3339))
		}
		verdict, err := e.disputes.Verdict(ctx, a.ID)
		if err != nil {
			return err
		}

		switch verdict {
		case dispute.VerdictPending:
			return contracts.Errorf(contracts.KindInvalidState, op, "action %d has unresolved challenges", a.ID)
		case dispute.VerdictUpheld:
			discarded := a.RewardPending
			a.Status = contracts.StatusRejected
			a.RewardPending = 0
			if err := e.saveAction(ctx, a); err != nil {
				return err
			}
			status = a.Status
			e.logger.InfoContext(ctx, "action rejected", "action_id", a.ID, "reward_discarded", discarded)
			return e.record(ctx, contracts.EventActionRejected, a.ID, caller, now, map[string]any{
				"reward_discarded": discarded,
			})
		}

		if err := e.settle(ctx, a, caller, now, false); err != nil {
			return err
		}
		status = a.Status
		return nil
	})
	return status, err
}

// settle mints a's reward and moves it to FINALIZED. Minting comes first so
// a failed mint leaves the action in its prior status and the call can be
// retried. The engine mutex keeps a second settlement out until the status
// write lands.
func (e *Engine) settle(ctx context.Context, a *contracts.Action, caller string, now time.Time, instant bool) error {
	r, err := e.settler.Prepare(ctx, a, e.params, now)
	if err != nil {
		return err
	}
	if err := e.settler.Execute(ctx, r); err != nil {
		return err
	}

	a.RewardPaid = a.RewardPending
	a.RewardPending = 0
	a.Status = contracts.StatusFinalized
	if err := e.saveAction(ctx, a); err != nil {
		e.logger.ErrorContext(ctx, "reward minted but action not finalized",
			"action_id", a.ID,
			"reward_paid", a.RewardPaid,
			"error", err,
		)
		return err
	}
	if err := e.actions.PutReceipt(ctx, r); err != nil {
		return fmt.Errorf("engine: store receipt for action %d: %w", a.ID, err)
	}

	e.logger.InfoContext(ctx, "action finalized",
		"action_id", a.ID,
		"reward_paid", a.RewardPaid,
		"instant", instant,
	)
	if instant {
		if err := e.record(ctx, contracts.EventActionVerified, a.ID, caller, now, map[string]any{
			"reward_pending": a.RewardPaid,
			"verified_at":    now.UTC(),
		}); err != nil {
			return err
		}
	}
	if err := e.record(ctx, contracts.EventActionFinalized, a.ID, caller, now, map[string]any{
		"reward_paid": a.RewardPaid,
		"instant":     instant,
	}); err != nil {
		return err
	}
	return e.record(ctx, contracts.EventSettlementExecuted, a.ID, caller, now, r)
}

// SetAttestation records an external attestation handle on a VERIFIED or
// FINALIZED action.
func (e *Engine) SetAttestation(ctx context.Context, caller string, actionID uint64, attestationID string) error {
	const op = "set_attestation"
	return e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := e.roles.RequireVerifier(ctx, caller, op); err != nil {
			return err
		}
		if attestationID == "" {
			return contracts.Errorf(contracts.KindInvalidInput, op, "attestation id is required")
		}
		a, err := e.loadAction(ctx, op, actionID)
		if err != nil {
			return err
		}
		if a.Status != contracts.StatusVerified && a.Status != contracts.StatusFinalized {
			return contracts.Errorf(contracts.KindInvalidState, op, "action %d is %s", a.ID, a.Status)
		}

		a.AttestationID = attestationID
		if err := e.saveAction(ctx, a); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "attestation set", "action_id", a.ID, "attestation_id", attestationID)
		return e.record(ctx, contracts.EventAttestationSet, a.ID, caller, now, map[string]any{
			"attestation_id": attestationID,
		})
	})
}
