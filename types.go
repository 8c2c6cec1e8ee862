package backDashboard

import (
	"time"

	"github.com/orbitadevhub/backDashboard/account"
	"github.com/orbitadevhub/backDashboard/guard"
	"github.com/orbitadevhub/backDashboard/jwt"
)

// Token phases, re-exported from the jwt package.
const (
	PhasePending  = jwt.PhasePending
	PhaseVerified = jwt.PhaseVerified
)

// Operations guarded by the HTTP surface. Each names its required phase and
// the roles allowed to call it.
var (
	OpVerifyLoginTOTP = guard.Operation{Name: "auth.2fa.verify", Phase: jwt.PhasePending}
	OpEnrollTOTP      = guard.Operation{Name: "auth.2fa.enroll", Roles: []string{account.RoleUser, account.RoleAdmin}}
	OpConfirmTOTP     = guard.Operation{Name: "auth.2fa.confirm", Roles: []string{account.RoleUser, account.RoleAdmin}}
	OpProfile         = guard.Operation{Name: "users.me", Roles: []string{account.RoleUser, account.RoleAdmin}}
	OpUpdateRoles     = guard.Operation{Name: "users.roles.update", Roles: []string{account.RoleAdmin}}
)

// RegisterRequest is the input of Engine.Register.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Registration is the result of Engine.Register. Enrollment is nil when
// TOTP.EnrollOnRegister is off or the enrollment step failed; the account
// exists either way.
type Registration struct {
	Account    account.Account
	Enrollment *TOTPEnrollment
}

// PendingAuth is what a successful password check knows about the account.
type PendingAuth struct {
	AccountID   string
	TOTPEnabled bool
	Roles       []string
}

// LoginResult carries the token handed to the client after a login step.
// TOTPRequired is true exactly when Phase is PENDING.
type LoginResult struct {
	Token        string
	Phase        jwt.Phase
	ExpiresAt    time.Time
	AccountID    string
	TOTPRequired bool
}

// TOTPEnrollment is returned to the caller of EnrollTOTP. Queued reports
// whether the QR mail was handed to the delivery queue.
type TOTPEnrollment struct {
	Secret string
	URI    string
	QRCode []byte
	Queued bool
}
