package access

import (
	"context"
	"testing"

	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newControl(t *testing.T) *Control {
	t.Helper()
	c := NewControl(NewMemoryStorage())
	require.NoError(t, c.Bootstrap(context.Background(), "admin"))
	return c
}

func TestBootstrap_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	c := newControl(t)
	require.NoError(t, c.Bootstrap(ctx, "mallory"))

	a, err := c.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", a)
}

func TestGuards(t *testing.T) {
	ctx := context.Background()
	c := newControl(t)
	require.NoError(t, c.Grant(ctx, contracts.RoleVerifier, "vera"))
	require.NoError(t, c.Grant(ctx, contracts.RoleOracle, "otto"))

	assert.NoError(t, c.RequireAdmin(ctx, "admin", "op"))
	assert.ErrorIs(t, c.RequireAdmin(ctx, "vera", "op"), contracts.KindNotAuthorized)
	assert.ErrorIs(t, c.RequireAdmin(ctx, "", "op"), contracts.KindNotAuthorized)

	assert.NoError(t, c.RequireVerifier(ctx, "vera", "verify"))
	assert.ErrorIs(t, c.RequireVerifier(ctx, "otto", "verify"), contracts.KindNotAuthorized)

	assert.NoError(t, c.RequireOracle(ctx, "otto", "attach_oracle_report"))
	assert.ErrorIs(t, c.RequireOracle(ctx, "vera", "attach_oracle_report"), contracts.KindNotAuthorized)
}

func TestCheckChange(t *testing.T) {
	ctx := context.Background()
	c := newControl(t)

	tests := []struct {
		name    string
		caller  string
		role    contracts.Role
		account string
		kind    contracts.Kind
	}{
		{"ok", "admin", contracts.RoleVerifier, "vera", ""},
		{"non admin", "vera", contracts.RoleVerifier, "vera", contracts.KindNotAuthorized},
		{"admin role", "admin", contracts.RoleAdmin, "x", contracts.KindInvalidInput},
		{"empty account", "admin", contracts.RoleOracle, "", contracts.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.CheckChange(ctx, tt.caller, tt.role, tt.account, "add_role")
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestGrantRevokeIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newControl(t)

	require.NoError(t, c.Grant(ctx, contracts.RoleVerifier, "b"))
	require.NoError(t, c.Grant(ctx, contracts.RoleVerifier, "a"))
	require.NoError(t, c.Grant(ctx, contracts.RoleVerifier, "a"))

	m, err := c.Members(ctx, contracts.RoleVerifier)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, m)

	require.NoError(t, c.Revoke(ctx, contracts.RoleVerifier, "a"))
	require.NoError(t, c.Revoke(ctx, contracts.RoleVerifier, "a"))
	ok, err := c.Has(ctx, contracts.RoleVerifier, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransferAdmin(t *testing.T) {
	ctx := context.Background()
	c := newControl(t)

	assert.ErrorIs(t, c.CheckTransfer(ctx, "vera", "vera"), contracts.KindNotAuthorized)
	assert.ErrorIs(t, c.CheckTransfer(ctx, "admin", ""), contracts.KindInvalidInput)
	require.NoError(t, c.CheckTransfer(ctx, "admin", "next"))
	require.NoError(t, c.TransferAdmin(ctx, "next"))

	assert.ErrorIs(t, c.RequireAdmin(ctx, "admin", "op"), contracts.KindNotAuthorized)
	assert.NoError(t, c.RequireAdmin(ctx, "next", "op"))
}
