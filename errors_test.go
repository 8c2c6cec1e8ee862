package backDashboard

import (
	"errors"
	"fmt"
	"testing"
)

func TestPublicError(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{nil, nil},
		{ErrAccountNotFound, ErrInvalidCredentials},
		{ErrInvalidCredentials, ErrInvalidCredentials},
		{ErrWrongAuthMethod, ErrWrongAuthMethod},
		{fmt.Errorf("%w: %w", ErrUnauthenticated, ErrExpired), ErrUnauthenticated},
		{ErrSignatureInvalid, ErrUnauthenticated},
		{ErrPendingReplay, ErrUnauthenticated},
		{ErrPendingAttemptsExceeded, ErrUnauthenticated},
		{ErrWrongAuthPhase, ErrWrongAuthPhase},
		{ErrForbidden, ErrForbidden},
		{fmt.Errorf("%w: must include a special character", ErrPasswordPolicy), ErrPasswordPolicy},
		{fmt.Errorf("%w: dial tcp", ErrStoreUnavailable), ErrInternal},
		{errors.New("boom"), ErrInternal},
	}

	for _, tt := range tests {
		if got := PublicError(tt.in); got != tt.want {
			t.Fatalf("PublicError(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAuditErrorCodes(t *testing.T) {
	if auditErrorCode(nil) != "" {
		t.Fatal("nil error must have no code")
	}
	if auditErrorCode(ErrAccountNotFound) != auditErrAccountNotFound {
		t.Fatal("unexpected code for ErrAccountNotFound")
	}
	if auditErrorCode(fmt.Errorf("%w: x", ErrUnauthenticated)) != auditErrInvalidToken {
		t.Fatal("unexpected code for ErrUnauthenticated")
	}
	if auditErrorCode(errors.New("other")) != auditErrInternal {
		t.Fatal("unexpected code for unknown error")
	}
}
