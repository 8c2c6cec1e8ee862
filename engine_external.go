package backDashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/orbitadevhub/backDashboard/account"
	"github.com/orbitadevhub/backDashboard/external"
	"github.com/orbitadevhub/backDashboard/jwt"
)

const maxLinkAttempts = 3

// LinkOrCreate resolves a provider identity to an account.
//
// Lookup order is the external id, then the canonical email (the provider
// id is written onto that account), then a new account with no password,
// the default roles and TOTP off. A create that loses a race re-resolves, so
// repeated or concurrent calls for one identity return the same account.
func (e *Engine) LinkOrCreate(ctx context.Context, id external.Identity) (account.Account, error) {
	if e == nil || e.accounts == nil {
		return account.Account{}, ErrEngineNotReady
	}
	if err := id.Validate(); err != nil {
		return account.Account{}, err
	}

	var lastErr error
	for attempt := 0; attempt < maxLinkAttempts; attempt++ {
		a, err := e.resolveExternal(ctx, id)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, account.ErrDuplicate) {
			return account.Account{}, err
		}
		lastErr = err
	}
	e.logger.Error().Err(lastErr).Str("op", "link_or_create").Msg("identity did not settle")
	return account.Account{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}

// resolveExternal runs one pass of the lookup order. account.ErrDuplicate is
// returned unmapped so the caller can retry.
func (e *Engine) resolveExternal(ctx context.Context, id external.Identity) (account.Account, error) {
	extID := id.ExternalID()

	a, err := e.accounts.FindByExternalID(ctx, extID)
	if err == nil {
		e.metricInc(MetricExternalResolved)
		return a, nil
	}
	if !errors.Is(err, account.ErrNotFound) {
		return account.Account{}, storeError(err)
	}

	email := account.CanonicalEmail(id.Email)
	a, err = e.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return e.linkExisting(ctx, a, id)
	case !errors.Is(err, account.ErrNotFound):
		return account.Account{}, storeError(err)
	}

	a, err = e.accounts.Create(ctx, account.Draft{
		Email:      email,
		ExternalID: extID,
		Roles:      e.config.Account.DefaultRoles,
		FirstName:  id.FirstName,
		LastName:   id.LastName,
	})
	if err != nil {
		if errors.Is(err, account.ErrDuplicate) {
			return account.Account{}, err
		}
		return account.Account{}, storeError(err)
	}
	e.metricInc(MetricExternalCreated)
	e.emitAudit(ctx, auditEventExternalCreated, true, a.ID, nil, func() map[string]string {
		return map[string]string{"provider": id.Provider}
	})
	return a, nil
}

func (e *Engine) linkExisting(ctx context.Context, a account.Account, id external.Identity) (account.Account, error) {
	extID := id.ExternalID()
	switch {
	case a.ExternalID == extID:
		return a, nil
	case a.ExternalID != "":
		return account.Account{}, e.linkConflict(ctx, a.ID, "linked to another identity")
	case e.config.External.RequireVerifiedEmailForMerge && !id.EmailVerified:
		return account.Account{}, e.linkConflict(ctx, a.ID, "email not verified by provider")
	}

	updated, err := e.accounts.Update(ctx, a.ID, account.Patch{ExternalID: account.String(extID)})
	if err != nil {
		if errors.Is(err, account.ErrDuplicate) {
			return account.Account{}, err
		}
		return account.Account{}, storeError(err)
	}
	e.metricInc(MetricExternalLinked)
	e.emitAudit(ctx, auditEventExternalLinked, true, a.ID, nil, func() map[string]string {
		return map[string]string{"provider": id.Provider}
	})
	return updated, nil
}

func (e *Engine) linkConflict(ctx context.Context, accountID, reason string) error {
	e.metricInc(MetricExternalConflict)
	err := fmt.Errorf("%w: %s", ErrExternalIdentityConflict, reason)
	e.emitAudit(ctx, auditEventExternalConflict, false, accountID, err, nil)
	return err
}

// LoginExternal links or creates the account and issues a VERIFIED token.
// With External.RequireMFAForExternalLogin and TOTP enabled on the account a
// PENDING token is issued instead, to be completed with CompleteLogin.
func (e *Engine) LoginExternal(ctx context.Context, id external.Identity) (*LoginResult, error) {
	a, err := e.LinkOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.config.External.RequireMFAForExternalLogin && a.TOTPEnabled {
		return e.issuePending(ctx, a)
	}

	res, _, err := e.issue(a, jwt.PhaseVerified)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventExternalLoginSuccess, true, a.ID, nil, func() map[string]string {
		return map[string]string{"provider": id.Provider}
	})
	return res, nil
}
