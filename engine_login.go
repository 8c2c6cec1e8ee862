package backDashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/orbitadevhub/backDashboard/account"
	"github.com/orbitadevhub/backDashboard/internal/rate"
	"github.com/orbitadevhub/backDashboard/internal/stores"
	"github.com/orbitadevhub/backDashboard/jwt"
	"github.com/orbitadevhub/backDashboard/password"
)

// Authenticate checks an email and password pair.
//
// The email is canonicalized before lookup. An unknown email is
// ErrAccountNotFound, an account without a password hash is
// ErrWrongAuthMethod and a wrong password is ErrInvalidCredentials. Use
// PublicError before showing the error to a client. Failed attempts count
// against the login throttle; a success resets it.
func (e *Engine) Authenticate(ctx context.Context, email, pass string) (*PendingAuth, error) {
	a, err := e.authenticate(ctx, email, pass)
	if err != nil {
		return nil, err
	}
	return &PendingAuth{
		AccountID:   a.ID,
		TOTPEnabled: a.TOTPEnabled,
		Roles:       append([]string(nil), a.Roles...),
	}, nil
}

func (e *Engine) authenticate(ctx context.Context, email, pass string) (account.Account, error) {
	if e == nil || e.accounts == nil {
		return account.Account{}, ErrEngineNotReady
	}

	canonical := account.CanonicalEmail(email)
	if canonical == "" {
		return account.Account{}, ErrInvalidCredentials
	}
	ip := clientIPFromContext(ctx)

	if err := e.limiter.CheckLogin(ctx, canonical, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", ErrLoginRateLimited, nil)
			return account.Account{}, ErrLoginRateLimited
		}
		return account.Account{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	a, err := e.accounts.FindByEmail(ctx, canonical)
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			e.logger.Error().Err(err).Str("op", "authenticate").Msg("account lookup failed")
			return account.Account{}, storeError(err)
		}
		// Same argon2 cost as a real mismatch.
		_, _ = e.hasher.Verify(pass, e.dummyHash)
		e.loginFailed(ctx, canonical, ip, "", ErrAccountNotFound)
		return account.Account{}, ErrAccountNotFound
	}

	if !a.HasPassword() {
		e.loginFailed(ctx, canonical, ip, a.ID, ErrWrongAuthMethod)
		return account.Account{}, ErrWrongAuthMethod
	}

	ok, err := e.hasher.Verify(pass, a.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrTooLong) {
		e.logger.Error().Err(err).Str("op", "authenticate").Str("account_id", a.ID).Msg("stored password hash unusable")
		return account.Account{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		e.loginFailed(ctx, canonical, ip, a.ID, ErrInvalidCredentials)
		return account.Account{}, ErrInvalidCredentials
	}

	if err := e.limiter.ResetLogin(ctx, canonical); err != nil {
		e.logger.Warn().Err(err).Str("account_id", a.ID).Msg("login throttle reset failed")
	}

	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsUpgrade(a.PasswordHash) {
		a = e.rehash(ctx, a, pass)
	}

	return a, nil
}

func (e *Engine) loginFailed(ctx context.Context, email, ip, accountID string, cause error) {
	e.metricInc(MetricLoginFailure)
	if err := e.limiter.RecordLoginFailure(ctx, email, ip); err != nil {
		e.logger.Warn().Err(err).Msg("login failure not recorded")
	}
	e.emitAudit(ctx, auditEventLoginFailure, false, accountID, cause, nil)
}

// rehash replaces a legacy or weaker hash after a successful login. Failure
// is logged and the login proceeds on the old hash.
func (e *Engine) rehash(ctx context.Context, a account.Account, pass string) account.Account {
	h, err := e.hasher.Hash(pass)
	if err != nil {
		e.logger.Warn().Err(err).Str("account_id", a.ID).Msg("password rehash failed")
		return a
	}
	updated, err := e.accounts.Update(ctx, a.ID, account.Patch{PasswordHash: account.String(h)})
	if err != nil {
		e.logger.Warn().Err(err).Str("account_id", a.ID).Msg("password rehash not stored")
		return a
	}
	e.metricInc(MetricPasswordRehashed)
	return updated
}

// Login authenticates and issues a token. Accounts with TOTP enabled get a
// PENDING token that is only good for CompleteLogin; the rest get a VERIFIED
// session token.
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	a, err := e.authenticate(ctx, email, pass)
	if err != nil {
		return nil, err
	}
	if a.TOTPEnabled {
		return e.issuePending(ctx, a)
	}

	res, _, err := e.issue(a, jwt.PhaseVerified)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, a.ID, nil, nil)
	return res, nil
}

// issuePending signs a PENDING token and stores its challenge under the
// token id, so the token can be redeemed at most once.
func (e *Engine) issuePending(ctx context.Context, a account.Account) (*LoginResult, error) {
	res, tok, err := e.issue(a, jwt.PhasePending)
	if err != nil {
		return nil, err
	}
	err = e.pending.Save(ctx, tok.ID, &stores.PendingLogin{
		AccountID: a.ID,
		ExpiresAt: tok.ExpiresAt.Unix(),
	})
	if err != nil {
		e.logger.Error().Err(err).Str("account_id", a.ID).Msg("pending login not stored")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricPendingIssued)
	e.emitAudit(ctx, auditEventPendingIssued, true, a.ID, nil, nil)
	return res, nil
}

// CompleteLogin exchanges a PENDING token and a TOTP code for a VERIFIED
// token.
//
// Each time step is accepted once per account across ConfirmTOTP and
// CompleteLogin. A user who confirms enrollment and logs in within the same
// step gets ErrInvalidCode and has to wait for the next code.
//
// A wrong code leaves the PENDING token usable until TOTP.MaxPendingAttempts
// is reached, after which the challenge is destroyed and the caller has to
// log in again. A redeemed PENDING token fails with ErrPendingReplay.
func (e *Engine) CompleteLogin(ctx context.Context, pendingToken, code string) (*LoginResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.ValidateToken(pendingToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.Phase != jwt.PhasePending {
		return nil, ErrWrongAuthPhase
	}
	accountID := claims.AccountID()

	if _, err := e.pending.Get(ctx, claims.ID, accountID); err != nil {
		return nil, e.pendingFailed(ctx, accountID, pendingError(err))
	}

	if err := e.VerifyLoginTOTP(ctx, accountID, code); err != nil {
		if !errors.Is(err, ErrInvalidCode) {
			return nil, e.pendingFailed(ctx, accountID, err)
		}
		exceeded, ferr := e.pending.RecordFailure(ctx, claims.ID, e.config.TOTP.MaxPendingAttempts)
		switch {
		case ferr != nil:
			return nil, e.pendingFailed(ctx, accountID, pendingError(ferr))
		case exceeded:
			e.metricInc(MetricPendingAttemptsExceeded)
			return nil, e.pendingFailed(ctx, accountID, ErrPendingAttemptsExceeded)
		}
		return nil, e.pendingFailed(ctx, accountID, err)
	}

	if err := e.pending.Consume(ctx, claims.ID); err != nil {
		return nil, e.pendingFailed(ctx, accountID, pendingError(err))
	}

	// Roles are read again so a change made while the token was PENDING
	// is reflected in the session.
	a, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, storeError(err)
	}
	res, _, err := e.issue(a, jwt.PhaseVerified)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricPendingCompleted)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventPendingCompleted, true, accountID, nil, nil)
	return res, nil
}

func (e *Engine) pendingFailed(ctx context.Context, accountID string, err error) error {
	if errors.Is(err, ErrPendingReplay) {
		e.metricInc(MetricPendingReplay)
	}
	e.emitAudit(ctx, auditEventPendingFailure, false, accountID, err, nil)
	return err
}

func pendingError(err error) error {
	switch {
	case errors.Is(err, stores.ErrPendingNotFound), errors.Is(err, stores.ErrPendingAccount):
		return ErrPendingReplay
	case errors.Is(err, stores.ErrPendingExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
