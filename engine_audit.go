package backDashboard

import (
	"context"
	"errors"

	"github.com/orbitadevhub/backDashboard/internal/audit"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventPendingIssued        = "pending_issued"
	auditEventPendingCompleted     = "pending_completed"
	auditEventPendingFailure       = "pending_failure"
	auditEventTOTPEnrolled         = "totp_enrolled"
	auditEventTOTPConfirmed        = "totp_confirmed"
	auditEventTOTPFailure          = "totp_failure"
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterFailure      = "register_failure"
	auditEventExternalLinked       = "external_linked"
	auditEventExternalCreated      = "external_created"
	auditEventExternalConflict     = "external_conflict"
	auditEventExternalLoginSuccess = "external_login_success"
	auditEventRolesUpdated         = "roles_updated"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrWrongAuthMethod    AuditErrorCode = "wrong_auth_method"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrNotEnrolled        AuditErrorCode = "not_enrolled"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrPendingReplay      AuditErrorCode = "pending_replay"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrWrongPhase         AuditErrorCode = "wrong_phase"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrConflict           AuditErrorCode = "external_conflict"
	auditErrRoleInvalid        AuditErrorCode = "role_invalid"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrWrongAuthMethod):
		return auditErrWrongAuthMethod
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrNotEnrolled):
		return auditErrNotEnrolled
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrTOTPRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrPendingReplay):
		return auditErrPendingReplay
	case errors.Is(err, ErrPendingAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrWrongAuthPhase):
		return auditErrWrongPhase
	case errors.Is(err, ErrExpired), errors.Is(err, ErrMalformed),
		errors.Is(err, ErrSignatureInvalid), errors.Is(err, ErrUnauthenticated):
		return auditErrInvalidToken
	case errors.Is(err, ErrDuplicateAccount):
		return auditErrDuplicate
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrExternalIdentityConflict):
		return auditErrConflict
	case errors.Is(err, ErrRoleInvalid):
		return auditErrRoleInvalid
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
