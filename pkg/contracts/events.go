package contracts

// EventType names a journaled state change.
type EventType string

const (
	EventActionSubmitted    EventType = "action.submitted"
	EventOracleReported     EventType = "action.oracle_reported"
	EventActionVerified     EventType = "action.verified"
	EventAttestationSet     EventType = "action.attestation_set"
	EventActionFinalized    EventType = "action.finalized"
	EventActionRejected     EventType = "action.rejected"
	EventChallengeRaised    EventType = "challenge.raised"
	EventChallengeResolved  EventType = "challenge.resolved"
	EventBondSlashed        EventType = "bond.slashed"
	EventBondDeposited      EventType = "bond.deposited"
	EventBondWithdrawn      EventType = "bond.withdrawn"
	EventStakeDeposited     EventType = "stake.deposited"
	EventStakeWithdrawn     EventType = "stake.withdrawn"
	EventSettlementExecuted EventType = "settlement.executed"
	EventRoleGranted        EventType = "role.granted"
	EventRoleRevoked        EventType = "role.revoked"
	EventAdminTransferred   EventType = "admin.transferred"
	EventConfigUpdated      EventType = "config.updated"
	EventCreditsRetired     EventType = "credits.retired"
	EventReferenceUpserted  EventType = "reference.upserted"
)
