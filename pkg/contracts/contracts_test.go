package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindMatching(t *testing.T) {
	err := Errorf(KindInsufficientBond, "submit", "have %d, need %d", 1, 5)
	wrapped := fmt.Errorf("api: %w", err)

	assert.True(t, errors.Is(wrapped, KindInsufficientBond))
	assert.False(t, errors.Is(wrapped, KindInvalidState))
	assert.True(t, errors.Is(wrapped, &Error{Kind: KindInsufficientBond}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: KindInsufficientBond, Op: "verify"}))
	assert.Equal(t, KindInsufficientBond, KindOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("disk full")))
	assert.Equal(t, "submit: INSUFFICIENT_BOND: have 1, need 5", err.Error())
}

func TestRefIDRoundTrip(t *testing.T) {
	hexID := strings.Repeat("ab", 32)
	id, err := ParseRefID("0x" + hexID)
	require.NoError(t, err)
	assert.False(t, id.IsZero())
	assert.Equal(t, "0x"+hexID, id.String())

	raw, err := json.Marshal(struct {
		ID RefID `json:"id"`
	}{id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"0x`+hexID+`"}`, string(raw))

	zero, err := ParseRefID("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = ParseRefID("0x1234")
	assert.ErrorIs(t, err, KindInvalidInput)
	_, err = ParseRefID(strings.Repeat("zz", 32))
	assert.ErrorIs(t, err, KindInvalidInput)
}

func TestParseCreditType(t *testing.T) {
	c, err := ParseCreditType("removal")
	require.NoError(t, err)
	assert.Equal(t, CreditRemoval, c)

	_, err = ParseCreditType("offset")
	assert.ErrorIs(t, err, KindInvalidInput)
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"defaults", DefaultParams(), false},
		{"full buffer", Params{BufferBasisPoints: 10_000, BufferReserveAccount: "reserve"}, false},
		{"over max", Params{BufferBasisPoints: 10_001, BufferReserveAccount: "reserve"}, true},
		{"buffer without account", Params{BufferBasisPoints: 500}, true},
		{"unknown mode", Params{BufferMode: "burn"}, true},
		{"additive", Params{BufferMode: BufferAdditive}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, KindInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestActionCloneDoesNotAlias(t *testing.T) {
	a := &Action{ID: 1, OracleReports: []string{"r1"}}
	c := a.Clone()
	c.OracleReports[0] = "changed"
	assert.Equal(t, "r1", a.OracleReports[0])
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusSubmitted.Terminal())
	assert.False(t, StatusVerified.Terminal())
	assert.True(t, StatusFinalized.Terminal())
	assert.True(t, StatusRejected.Terminal())
}
