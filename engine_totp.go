package backDashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orbitadevhub/backDashboard/account"
	"github.com/orbitadevhub/backDashboard/internal/rate"
	"github.com/orbitadevhub/backDashboard/notify"
)

// EnrollTOTP generates a fresh secret for the account, stores it with TOTP
// disabled and queues the QR code for delivery. Calling it again replaces
// the secret and disables TOTP until ConfirmTOTP succeeds.
//
// Delivery runs in the background. A full or closed queue is logged and
// reported through TOTPEnrollment.Queued; the stored secret is kept either
// way.
func (e *Engine) EnrollTOTP(ctx context.Context, accountID string) (*TOTPEnrollment, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	a, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, storeError(err)
	}
	return e.enroll(ctx, a)
}

func (e *Engine) enroll(ctx context.Context, a account.Account) (*TOTPEnrollment, error) {
	key, err := e.totp.Generate(a.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	_, err = e.accounts.Update(ctx, a.ID, account.Patch{
		TOTPSecret:  account.String(key.Secret),
		TOTPEnabled: account.Bool(false),
	})
	if err != nil {
		e.logger.Error().Err(err).Str("op", "enroll_totp").Str("account_id", a.ID).Msg("totp secret not stored")
		return nil, storeError(err)
	}
	e.metricInc(MetricTOTPEnrolled)

	enrollment := &TOTPEnrollment{
		Secret: key.Secret,
		URI:    key.URI,
		QRCode: key.QRCode,
	}

	err = e.notifier.Enqueue(a.Email, notify.Material{
		AccountID: a.ID,
		Issuer:    e.config.TOTP.Issuer,
		URI:       key.URI,
		QRCode:    key.QRCode,
	})
	if err != nil {
		e.metricInc(MetricEnrollmentQueueFailure)
		e.logger.Warn().Err(err).Str("account_id", a.ID).Msg("enrollment delivery not queued")
	} else {
		enrollment.Queued = true
	}

	e.emitAudit(ctx, auditEventTOTPEnrolled, true, a.ID, nil, func() map[string]string {
		if enrollment.Queued {
			return map[string]string{"delivery": "queued"}
		}
		return map[string]string{"delivery": "failed"}
	})
	return enrollment, nil
}

// ConfirmTOTP turns TOTP on once the holder proves they can produce a code
// for the enrolled secret.
func (e *Engine) ConfirmTOTP(ctx context.Context, accountID, code string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	a, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return storeError(err)
	}
	if !a.Enrolled() {
		return ErrNotEnrolled
	}
	if err := e.checkCode(ctx, a, code); err != nil {
		return err
	}

	if a.TOTPEnabled {
		return nil
	}
	if _, err := e.accounts.Update(ctx, a.ID, account.Patch{TOTPEnabled: account.Bool(true)}); err != nil {
		return storeError(err)
	}
	e.metricInc(MetricTOTPConfirmed)
	e.emitAudit(ctx, auditEventTOTPConfirmed, true, a.ID, nil, nil)
	return nil
}

// VerifyLoginTOTP checks a login code without changing the account. It
// fails with ErrNotEnrolled unless TOTP is enabled.
func (e *Engine) VerifyLoginTOTP(ctx context.Context, accountID, code string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	a, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return storeError(err)
	}
	if !a.TOTPEnabled || !a.Enrolled() {
		return ErrNotEnrolled
	}
	return e.checkCode(ctx, a, code)
}

// checkCode applies the per-account throttle, the code comparison and the
// replay ledger, in that order.
func (e *Engine) checkCode(ctx context.Context, a account.Account, code string) error {
	if err := e.limiter.CheckTOTP(ctx, a.ID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricTOTPRateLimited)
			e.emitAudit(ctx, auditEventTOTPFailure, false, a.ID, ErrTOTPRateLimited, nil)
			return ErrTOTPRateLimited
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, counter, err := e.totp.Verify(a.TOTPSecret, code, e.now())
	if err != nil {
		e.logger.Error().Err(err).Str("account_id", a.ID).Msg("stored totp secret unusable")
		return ErrNotEnrolled
	}
	if !ok {
		return e.codeFailed(ctx, a.ID, ErrInvalidCode)
	}

	if e.config.TOTP.EnforceReplayProtection {
		fresh, err := e.replay.Claim(ctx, a.ID, counter, e.replayTTL())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !fresh {
			e.metricInc(MetricTOTPReplayRejected)
			return e.codeFailed(ctx, a.ID, ErrInvalidCode)
		}
	}

	if err := e.limiter.ResetTOTP(ctx, a.ID); err != nil {
		e.logger.Warn().Err(err).Str("account_id", a.ID).Msg("totp throttle reset failed")
	}
	e.metricInc(MetricTOTPSuccess)
	return nil
}

func (e *Engine) codeFailed(ctx context.Context, accountID string, cause error) error {
	e.metricInc(MetricTOTPFailure)
	if err := e.limiter.RecordTOTPFailure(ctx, accountID); err != nil {
		e.logger.Warn().Err(err).Str("account_id", accountID).Msg("totp failure not recorded")
	}
	e.emitAudit(ctx, auditEventTOTPFailure, false, accountID, cause, nil)
	return cause
}

// replayTTL covers every step a code can be accepted in, plus one.
func (e *Engine) replayTTL() time.Duration {
	steps := 2*e.config.TOTP.Skew + 2
	return time.Duration(steps*e.config.TOTP.Period) * time.Second
}
