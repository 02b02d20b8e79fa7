// Package admission evaluates optional CEL rules against a claim before it
// is accepted for submission.
//
// Rules see a single "input" map:
//
//	input.submitter         string
//	input.credit_type       string ("REDUCTION", "REMOVAL", "AVOIDANCE")
//	input.quantity          int (grams CO2e)
//	input.uncertainty_bps   int
//	input.durability_years  int
//	input.proof_reference   string
//	input.methodology_id    string (0x-prefixed hex)
//
// Every rule must evaluate to true.
package admission

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// Rule is a named CEL boolean expression.
type Rule struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
}

type compiled struct {
	name string
	prg  cel.Program
}

// Policy is an immutable set of compiled rules. A nil *Policy admits
// everything.
type Policy struct {
	rules []compiled
}

// NewPolicy compiles rules. Compile errors are reported up front so a bad
// rule never reaches a submission.
func NewPolicy(rules []Rule) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	p := &Policy{}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("CEL compile error in rule %q: %w", r.Name, issues.Err())
		}
		if !ast.OutputType().IsAssignableType(cel.BoolType) {
			return nil, fmt.Errorf("rule %q must evaluate to bool, got %s", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("CEL program error in rule %q: %w", r.Name, err)
		}
		p.rules = append(p.rules, compiled{name: r.Name, prg: prg})
	}
	return p, nil
}

// Len returns the number of rules.
func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

// Admit returns INVALID_INPUT naming the first rule that rejects the claim.
func (p *Policy) Admit(submitter string, c contracts.Claim) error {
	if p == nil || len(p.rules) == 0 {
		return nil
	}
	activation := map[string]any{"input": Input(submitter, c)}
	for _, r := range p.rules {
		out, _, err := r.prg.Eval(activation)
		if err != nil {
			return contracts.Errorf(contracts.KindInvalidInput, "submit", "admission rule %q failed to evaluate: %v", r.name, err)
		}
		allowed, ok := out.Value().(bool)
		if !ok {
			return contracts.Errorf(contracts.KindInvalidInput, "submit", "admission rule %q did not return bool", r.name)
		}
		if !allowed {
			return contracts.Errorf(contracts.KindInvalidInput, "submit", "rejected by admission rule %q", r.name)
		}
	}
	return nil
}

// Input builds the CEL input map for a claim.
func Input(submitter string, c contracts.Claim) map[string]any {
	return map[string]any{
		"submitter":        submitter,
		"credit_type":      string(c.CreditType),
		"quantity":         clampInt(c.Quantity),
		"uncertainty_bps":  int64(c.UncertaintyBps),
		"durability_years": int64(c.DurabilityYears),
		"proof_reference":  c.ProofReference,
		"methodology_id":   c.MethodologyID.String(),
	}
}

func clampInt(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
