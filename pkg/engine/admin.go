package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

func (e *Engine) AddVerifier(ctx context.Context, caller, account string) error {
	return e.changeRole(ctx, "add_verifier", caller, contracts.RoleVerifier, account, true)
}

func (e *Engine) RemoveVerifier(ctx context.Context, caller, account string) error {
	return e.changeRole(ctx, "remove_verifier", caller, contracts.RoleVerifier, account, false)
}

func (e *Engine) AddOracle(ctx context.Context, caller, account string) error {
	return e.changeRole(ctx, "add_oracle", caller, contracts.RoleOracle, account, true)
}

func (e *Engine) RemoveOracle(ctx context.Context, caller, account string) error {
	return e.changeRole(ctx, "remove_oracle", caller, contracts.RoleOracle, account, false)
}

func (e *Engine) changeRole(ctx context.Context, op, caller string, role contracts.Role, account string, grant bool) error {
	return e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := e.roles.CheckChange(ctx, caller, role, account, op); err != nil {
			return err
		}
		typ := contracts.EventRoleGranted
		apply := e.roles.Grant
		if !grant {
			typ = contracts.EventRoleRevoked
			apply = e.roles.Revoke
		}
		if err := apply(ctx, role, account); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "role changed", "role", role, "account", account, "granted", grant)
		return e.record(ctx, typ, 0, caller, now, roleChange{Role: role, Account: account})
	})
}

// SetConfig replaces the global parameters.
func (e *Engine) SetConfig(ctx context.Context, caller string, p contracts.Params) error {
	const op = "set_config"
	return e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := e.roles.RequireAdmin(ctx, caller, op); err != nil {
			return err
		}
		if p.BufferMode == "" {
			p.BufferMode = contracts.BufferSplit
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if err := e.actions.SaveParams(ctx, p); err != nil {
			return fmt.Errorf("engine: save params: %w", err)
		}
		e.params = p
		e.logger.InfoContext(ctx, "config updated",
			"instant_settlement", p.InstantSettlement,
			"challenge_window_seconds", p.ChallengeWindowSeconds,
			"buffer_basis_points", p.BufferBasisPoints,
			"buffer_mode", p.BufferMode,
		)
		return e.record(ctx, contracts.EventConfigUpdated, 0, caller, now, p)
	})
}

// TransferAdmin hands the admin role to newAdmin.
func (e *Engine) TransferAdmin(ctx context.Context, caller, newAdmin string) error {
	const op = "transfer_admin"
	return e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := e.roles.CheckTransfer(ctx, caller, newAdmin); err != nil {
			return err
		}
		if err := e.roles.TransferAdmin(ctx, newAdmin); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "admin transferred", "from", caller, "to", newAdmin)
		return e.record(ctx, contracts.EventAdminTransferred, 0, caller, now, map[string]string{
			"from": caller,
			"to":   newAdmin,
		})
	})
}

// UpsertReference creates or updates a registry entry. Versions may not move
// backwards.
func (e *Engine) UpsertReference(ctx context.Context, caller string, ref contracts.Reference) (contracts.Reference, error) {
	const op = "upsert_reference"
	var out contracts.Reference
	err := e.run(ctx, op, caller, func(ctx context.Context, now time.Time) error {
		if err := e.roles.RequireAdmin(ctx, caller, op); err != nil {
			return err
		}
		ref.UpdatedAt = now
		var err error
		if out, err = e.references.Upsert(ctx, ref); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "reference upserted", "ref_id", out.ID, "version", out.Version, "active", out.Active)
		return e.record(ctx, contracts.EventReferenceUpserted, 0, caller, now, out)
	})
	return out, err
}
