package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

func TestPolicy_Admit(t *testing.T) {
	p, err := NewPolicy([]Rule{
		{Name: "min-quantity", Expression: `input.quantity >= 1000`},
		{Name: "removal-durability", Expression: `input.credit_type != "REMOVAL" || input.durability_years >= 100`},
		{Name: "proof-required", Expression: `input.proof_reference != ""`},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	ok := contracts.Claim{CreditType: contracts.CreditRemoval, Quantity: 5000, DurabilityYears: 100, ProofReference: "ipfs://p"}
	assert.NoError(t, p.Admit("alice", ok))

	small := ok
	small.Quantity = 10
	err = p.Admit("alice", small)
	assert.ErrorIs(t, err, contracts.KindInvalidInput)
	assert.Contains(t, err.Error(), "min-quantity")

	shortLived := ok
	shortLived.DurabilityYears = 5
	err = p.Admit("alice", shortLived)
	assert.Contains(t, err.Error(), "removal-durability")

	reduction := shortLived
	reduction.CreditType = contracts.CreditReduction
	assert.NoError(t, p.Admit("alice", reduction))
}

func TestPolicy_CompileErrors(t *testing.T) {
	_, err := NewPolicy([]Rule{{Name: "broken", Expression: `input.quantity >=`}})
	assert.ErrorContains(t, err, "broken")

	_, err = NewPolicy([]Rule{{Name: "not-bool", Expression: `1 + 2`}})
	assert.ErrorContains(t, err, "must evaluate to bool")
}

func TestPolicy_NilAdmitsEverything(t *testing.T) {
	var p *Policy
	assert.NoError(t, p.Admit("x", contracts.Claim{}))
	assert.Equal(t, 0, p.Len())
}

func TestPolicy_SubmitterRule(t *testing.T) {
	p, err := NewPolicy([]Rule{{Name: "no-test-accounts", Expression: `!input.submitter.startsWith("test-")`}})
	require.NoError(t, err)
	assert.Error(t, p.Admit("test-bot", contracts.Claim{}))
	assert.NoError(t, p.Admit("alice", contracts.Claim{}))
}
