package backDashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/orbitadevhub/backDashboard/account"
	"github.com/orbitadevhub/backDashboard/password"
)

// Register creates a password account with the default roles and TOTP off.
// With TOTP.EnrollOnRegister the account is enrolled right away and the QR
// code is mailed; an enrollment failure is logged and leaves the account in
// place with Registration.Enrollment nil.
//
// Two concurrent registrations of the same email produce exactly one
// account; the loser gets ErrDuplicateAccount.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	email := account.CanonicalEmail(req.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email required", ErrInvalidRequest)
	}
	if err := e.policy.Check(req.Password); err != nil {
		e.metricInc(MetricRegisterPolicyRejected)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return nil, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	a, err := e.accounts.Create(ctx, account.Draft{
		Email:        email,
		PasswordHash: hash,
		Roles:        e.config.Account.DefaultRoles,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	})
	if err != nil {
		err = storeError(err)
		if errors.Is(err, ErrDuplicateAccount) {
			e.metricInc(MetricRegisterDuplicate)
		} else {
			e.logger.Error().Err(err).Str("op", "register").Msg("account not created")
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, a.ID, nil, nil)

	reg := &Registration{Account: a}
	if e.config.TOTP.EnrollOnRegister {
		enrollment, err := e.enroll(ctx, a)
		if err != nil {
			e.logger.Warn().Err(err).Str("account_id", a.ID).Msg("enrollment after registration failed")
			return reg, nil
		}
		reg.Enrollment = enrollment
		if refreshed, err := e.accounts.FindByID(ctx, a.ID); err == nil {
			reg.Account = refreshed
		}
	}
	return reg, nil
}
