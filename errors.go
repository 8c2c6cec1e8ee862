package backDashboard

import (
	"errors"

	"github.com/orbitadevhub/backDashboard/external"
	"github.com/orbitadevhub/backDashboard/guard"
	"github.com/orbitadevhub/backDashboard/jwt"
	"github.com/orbitadevhub/backDashboard/password"
)

var (
	// ErrAccountNotFound means no account has the given email or id.
	ErrAccountNotFound = errors.New("account not found")
	// ErrWrongAuthMethod means the account exists but has no password; it
	// signs in through an external provider.
	ErrWrongAuthMethod = errors.New("account uses external sign-in")
	// ErrInvalidCredentials is a password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidCode is a wrong, malformed or replayed TOTP code.
	ErrInvalidCode = errors.New("invalid totp code")
	// ErrNotEnrolled means the account has no usable TOTP secret.
	ErrNotEnrolled = errors.New("totp not enrolled")
	// ErrDuplicateAccount means the email is already taken.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrLoginRateLimited means too many failed password attempts.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrTOTPRateLimited means too many failed codes for the account.
	ErrTOTPRateLimited = errors.New("totp rate limited")
	// ErrPendingReplay means the PENDING token was already used or its
	// challenge no longer exists.
	ErrPendingReplay = errors.New("pending login already used")
	// ErrPendingAttemptsExceeded means the PENDING token burned its code
	// attempts; the caller has to start over with the password.
	ErrPendingAttemptsExceeded = errors.New("pending login attempts exceeded")
	// ErrExternalIdentityConflict means the provider identity cannot be
	// linked to the account owning its email.
	ErrExternalIdentityConflict = errors.New("external identity conflict")
	// ErrRoleInvalid is an unknown or empty role set.
	ErrRoleInvalid = errors.New("invalid role")
	// ErrInvalidRequest is malformed input, such as an empty email.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStoreUnavailable wraps account store and Redis failures.
	ErrStoreUnavailable = errors.New("backend unavailable")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInternal is the public face of any error not in this list.
	ErrInternal = errors.New("internal error")
)

// Sentinels owned by sub-packages, re-exported so callers only need this
// package for errors.Is.
var (
	ErrExpired                 = jwt.ErrExpired
	ErrMalformed               = jwt.ErrMalformed
	ErrSignatureInvalid        = jwt.ErrSignatureInvalid
	ErrUnauthenticated         = guard.ErrUnauthenticated
	ErrWrongAuthPhase          = guard.ErrWrongAuthPhase
	ErrForbidden               = guard.ErrForbidden
	ErrPasswordPolicy          = password.ErrPolicy
	ErrExternalIdentityInvalid = external.ErrIncompleteIdentity
)

// publicErrors is checked in order; the first match is what PublicError
// returns.
var publicErrors = []error{
	ErrWrongAuthMethod,
	ErrInvalidCode,
	ErrNotEnrolled,
	ErrDuplicateAccount,
	ErrLoginRateLimited,
	ErrTOTPRateLimited,
	ErrWrongAuthPhase,
	ErrForbidden,
	ErrExternalIdentityConflict,
	ErrExternalIdentityInvalid,
	ErrRoleInvalid,
	ErrPasswordPolicy,
	ErrInvalidRequest,
}

// PublicError reduces err to a sentinel that is safe to show a client.
//
// An unknown email and a wrong password both become ErrInvalidCredentials so
// responses do not reveal which accounts exist. Every token problem becomes
// ErrUnauthenticated. ErrWrongAuthMethod is kept so the client can offer the
// provider sign-in.
func PublicError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrInvalidCredentials):
		return ErrInvalidCredentials
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrMalformed),
		errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrPendingReplay),
		errors.Is(err, ErrPendingAttemptsExceeded):
		return ErrUnauthenticated
	}
	for _, target := range publicErrors {
		if errors.Is(err, target) {
			return target
		}
	}
	return ErrInternal
}
