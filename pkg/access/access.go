// Package access holds the role sets that gate engine operations: a single
// Admin plus Verifier and Oracle membership. Each role has one guard,
// called at the top of the operation it protects.
package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// Storage persists role state.
type Storage interface {
	Admin(ctx context.Context) (string, error)
	SetAdmin(ctx context.Context, account string) error
	HasRole(ctx context.Context, role contracts.Role, account string) (bool, error)
	Members(ctx context.Context, role contracts.Role) ([]string, error)
	// Grant and Revoke are idempotent.
	Grant(ctx context.Context, role contracts.Role, account string) error
	Revoke(ctx context.Context, role contracts.Role, account string) error
}

// Control answers capability checks and applies role changes.
type Control struct {
	storage Storage
	logger  *slog.Logger
}

func NewControl(s Storage) *Control {
	return &Control{
		storage: s,
		logger:  slog.Default().With("component", "access"),
	}
}

// Bootstrap installs admin if no admin has been set yet.
func (c *Control) Bootstrap(ctx context.Context, admin string) error {
	cur, err := c.storage.Admin(ctx)
	if err != nil {
		return fmt.Errorf("access: load admin: %w", err)
	}
	if cur != "" || admin == "" {
		return nil
	}
	if err := c.storage.SetAdmin(ctx, admin); err != nil {
		return fmt.Errorf("access: set admin: %w", err)
	}
	c.logger.InfoContext(ctx, "admin bootstrapped", "admin", admin)
	return nil
}

func (c *Control) Admin(ctx context.Context) (string, error) {
	a, err := c.storage.Admin(ctx)
	if err != nil {
		return "", fmt.Errorf("access: load admin: %w", err)
	}
	return a, nil
}

// RequireAdmin fails with NOT_AUTHORIZED unless caller is the admin.
func (c *Control) RequireAdmin(ctx context.Context, caller, op string) error {
	admin, err := c.Admin(ctx)
	if err != nil {
		return err
	}
	if caller == "" || caller != admin {
		return contracts.Errorf(contracts.KindNotAuthorized, op, "caller %q is not admin", caller)
	}
	return nil
}

// RequireVerifier fails with NOT_AUTHORIZED unless caller is a verifier.
func (c *Control) RequireVerifier(ctx context.Context, caller, op string) error {
	return c.require(ctx, contracts.RoleVerifier, caller, op)
}

// RequireOracle fails with NOT_AUTHORIZED unless caller is an oracle.
func (c *Control) RequireOracle(ctx context.Context, caller, op string) error {
	return c.require(ctx, contracts.RoleOracle, caller, op)
}

func (c *Control) require(ctx context.Context, role contracts.Role, caller, op string) error {
	ok, err := c.Has(ctx, role, caller)
	if err != nil {
		return err
	}
	if !ok {
		return contracts.Errorf(contracts.KindNotAuthorized, op, "caller %q lacks role %s", caller, role)
	}
	return nil
}

func (c *Control) Has(ctx context.Context, role contracts.Role, account string) (bool, error) {
	if account == "" {
		return false, nil
	}
	ok, err := c.storage.HasRole(ctx, role, account)
	if err != nil {
		return false, fmt.Errorf("access: lookup %s: %w", role, err)
	}
	return ok, nil
}

func (c *Control) Members(ctx context.Context, role contracts.Role) ([]string, error) {
	m, err := c.storage.Members(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("access: list %s: %w", role, err)
	}
	return m, nil
}

// CheckChange validates a grant or revoke by caller without applying it.
func (c *Control) CheckChange(ctx context.Context, caller string, role contracts.Role, account, op string) error {
	if err := c.RequireAdmin(ctx, caller, op); err != nil {
		return err
	}
	if role != contracts.RoleVerifier && role != contracts.RoleOracle {
		return contracts.Errorf(contracts.KindInvalidInput, op, "role %q cannot be granted", role)
	}
	if account == "" {
		return contracts.Errorf(contracts.KindInvalidInput, op, "account is required")
	}
	return nil
}

// Grant adds account to role. Callers must run CheckChange first.
func (c *Control) Grant(ctx context.Context, role contracts.Role, account string) error {
	if err := c.storage.Grant(ctx, role, account); err != nil {
		return fmt.Errorf("access: grant %s: %w", role, err)
	}
	c.logger.InfoContext(ctx, "role granted", "role", role, "account", account)
	return nil
}

// Revoke removes account from role. Callers must run CheckChange first.
func (c *Control) Revoke(ctx context.Context, role contracts.Role, account string) error {
	if err := c.storage.Revoke(ctx, role, account); err != nil {
		return fmt.Errorf("access: revoke %s: %w", role, err)
	}
	c.logger.InfoContext(ctx, "role revoked", "role", role, "account", account)
	return nil
}

// CheckTransfer validates an admin handover.
func (c *Control) CheckTransfer(ctx context.Context, caller, newAdmin string) error {
	const op = "transfer_admin"
	if err := c.RequireAdmin(ctx, caller, op); err != nil {
		return err
	}
	if newAdmin == "" {
		return contracts.Errorf(contracts.KindInvalidInput, op, "new admin is required")
	}
	return nil
}

func (c *Control) TransferAdmin(ctx context.Context, newAdmin string) error {
	if err := c.storage.SetAdmin(ctx, newAdmin); err != nil {
		return fmt.Errorf("access: transfer admin: %w", err)
	}
	c.logger.InfoContext(ctx, "admin transferred", "admin", newAdmin)
	return nil
}
