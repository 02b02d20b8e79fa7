// Package contracts defines the shared data model of the settlement engine:
// claimed environmental actions, the challenges raised against them, global
// parameters, settlement receipts and the typed error taxonomy.
//
// Types here carry no behavior beyond validation and small helpers; the
// state machine lives in pkg/engine.
package contracts

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// CreditType classifies the environmental impact claimed by an action.
type CreditType string

const (
	CreditReduction CreditType = "REDUCTION"
	CreditRemoval   CreditType = "REMOVAL"
	CreditAvoidance CreditType = "AVOIDANCE"
)

// Valid reports whether c is a known credit type.
func (c CreditType) Valid() bool {
	switch c {
	case CreditReduction, CreditRemoval, CreditAvoidance:
		return true
	}
	return false
}

// ParseCreditType accepts the canonical upper-case names and their
// lower-case forms.
func ParseCreditType(s string) (CreditType, error) {
	c := CreditType(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", Errorf(KindInvalidInput, "parse_credit_type", "unknown credit type %q", s)
	}
	return c, nil
}

// ActionStatus is the lifecycle state of an action.
type ActionStatus string

const (
	StatusSubmitted ActionStatus = "SUBMITTED"
	StatusVerified  ActionStatus = "VERIFIED"
	StatusFinalized ActionStatus = "FINALIZED"
	StatusRejected  ActionStatus = "REJECTED"
)

// Terminal reports whether no further transition is possible from s.
func (s ActionStatus) Terminal() bool {
	return s == StatusFinalized || s == StatusRejected
}

// RefID is an opaque 256-bit identifier for a methodology, project or
// baseline held in the reference registry.
type RefID [32]byte

// ParseRefID decodes a 64-character hex string, with or without a 0x prefix.
// The empty string decodes to the zero id.
func ParseRefID(s string) (RefID, error) {
	var id RefID
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return id, nil
	}
	if len(s) != 64 {
		return id, Errorf(KindInvalidInput, "parse_ref_id", "reference id must be 32 bytes of hex, got %d chars", len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, Errorf(KindInvalidInput, "parse_ref_id", "invalid hex: %v", err)
	}
	return id, nil
}

// MustRefID is ParseRefID for constants and tests.
func MustRefID(s string) RefID {
	id, err := ParseRefID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id RefID) IsZero() bool { return id == RefID{} }

func (id RefID) String() string { return "0x" + hex.EncodeToString(id[:]) }

func (id RefID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *RefID) UnmarshalText(b []byte) error {
	parsed, err := ParseRefID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Claim is the caller-supplied part of an action. Fields are immutable once
// the action is submitted.
type Claim struct {
	Description     string     `json:"description"`
	ProofReference  string     `json:"proof_reference,omitempty"`
	CreditType      CreditType `json:"credit_type"`
	MethodologyID   RefID      `json:"methodology_id"`
	ProjectID       RefID      `json:"project_id"`
	BaselineID      RefID      `json:"baseline_id"`
	Quantity        uint64     `json:"quantity"` // grams CO2e
	UncertaintyBps  uint32     `json:"uncertainty_bps"`
	DurabilityYears uint32     `json:"durability_years"`
	Metadata        string     `json:"metadata,omitempty"`
}

// Action is one claimed environmental impact moving through the lifecycle.
type Action struct {
	ID        uint64 `json:"id"`
	Submitter string `json:"submitter"`
	Claim

	AttestationID    string       `json:"attestation_id,omitempty"`
	Status           ActionStatus `json:"status"`
	RewardPending    uint64       `json:"reward_pending"`
	RewardPaid       uint64       `json:"reward_paid"`
	SubmittedAt      time.Time    `json:"submitted_at"`
	VerifiedAt       time.Time    `json:"verified_at,omitempty"`
	VerifyingAccount string       `json:"verifying_account,omitempty"`
	OracleReports    []string     `json:"oracle_reports,omitempty"`
}

// Clone returns a deep copy so callers never alias engine-owned slices.
func (a *Action) Clone() *Action {
	if a == nil {
		return nil
	}
	c := *a
	if a.OracleReports != nil {
		c.OracleReports = append([]string(nil), a.OracleReports...)
	}
	return &c
}

// ChallengeDeadline is the first instant at which the action may no longer be
// challenged and may be finalized.
func (a *Action) ChallengeDeadline(window time.Duration) time.Time {
	return a.VerifiedAt.Add(window)
}

// Challenge disputes a verified action. Immutable once resolved.
type Challenge struct {
	ActionID          uint64    `json:"action_id"`
	Index             int       `json:"index"`
	Challenger        string    `json:"challenger"`
	EvidenceReference string    `json:"evidence_reference"`
	RaisedAt          time.Time `json:"raised_at"`
	Resolved          bool      `json:"resolved"`
	Upheld            bool      `json:"upheld"`
	ResolvedAt        time.Time `json:"resolved_at,omitempty"`
	ResolvedBy        string    `json:"resolved_by,omitempty"`
}

func (c Challenge) String() string {
	state := "pending"
	if c.Resolved {
		state = "dismissed"
		if c.Upheld {
			state = "upheld"
		}
	}
	return fmt.Sprintf("challenge %d/%d (%s)", c.ActionID, c.Index, state)
}
