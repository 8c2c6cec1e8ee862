package backDashboard

import (
	"context"
	"fmt"
	"slices"

	"github.com/orbitadevhub/backDashboard/account"
)

// UpdateRoles replaces the role set of an account. Every role must be one of
// Account.Roles. Tokens already issued keep their snapshot until they expire.
func (e *Engine) UpdateRoles(ctx context.Context, accountID string, roles []string) (account.Account, error) {
	if e == nil || e.accounts == nil {
		return account.Account{}, ErrEngineNotReady
	}
	if len(roles) == 0 {
		return account.Account{}, fmt.Errorf("%w: empty role set", ErrRoleInvalid)
	}

	set := make([]string, 0, len(roles))
	for _, r := range roles {
		if !slices.Contains(e.config.Account.Roles, r) {
			return account.Account{}, fmt.Errorf("%w: %q", ErrRoleInvalid, r)
		}
		if !slices.Contains(set, r) {
			set = append(set, r)
		}
	}

	a, err := e.accounts.Update(ctx, accountID, account.Patch{Roles: set})
	if err != nil {
		return account.Account{}, storeError(err)
	}
	e.metricInc(MetricRolesUpdated)
	e.emitAudit(ctx, auditEventRolesUpdated, true, accountID, nil, func() map[string]string {
		return map[string]string{"roles": fmt.Sprint(set)}
	})
	return a, nil
}

// Profile returns the current account snapshot.
func (e *Engine) Profile(ctx context.Context, accountID string) (account.Account, error) {
	if e == nil || e.accounts == nil {
		return account.Account{}, ErrEngineNotReady
	}
	a, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return account.Account{}, storeError(err)
	}
	return a, nil
}
