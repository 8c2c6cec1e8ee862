package internaldefs

import (
	backDashboard "github.com/orbitadevhub/backDashboard"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   backDashboard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   backDashboard.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter fed by Engine.AuditDropped.
const AuditDroppedName = "authd_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: backDashboard.MetricLoginSuccess, Name: "authd_login_success_total", Help: "Logins that issued a VERIFIED token."},
	{ID: backDashboard.MetricLoginFailure, Name: "authd_login_failure_total", Help: "Failed password checks."},
	{ID: backDashboard.MetricLoginRateLimited, Name: "authd_login_rate_limited_total", Help: "Password checks refused by the login throttle."},
	{ID: backDashboard.MetricPendingIssued, Name: "authd_pending_issued_total", Help: "PENDING tokens issued."},
	{ID: backDashboard.MetricPendingCompleted, Name: "authd_pending_completed_total", Help: "PENDING tokens exchanged for VERIFIED tokens."},
	{ID: backDashboard.MetricPendingReplay, Name: "authd_pending_replay_total", Help: "Reuse of a redeemed or destroyed PENDING token."},
	{ID: backDashboard.MetricPendingAttemptsExceeded, Name: "authd_pending_attempts_exceeded_total", Help: "PENDING challenges destroyed after too many wrong codes."},
	{ID: backDashboard.MetricTOTPSuccess, Name: "authd_totp_success_total", Help: "Accepted TOTP codes."},
	{ID: backDashboard.MetricTOTPFailure, Name: "authd_totp_failure_total", Help: "Rejected TOTP codes."},
	{ID: backDashboard.MetricTOTPRateLimited, Name: "authd_totp_rate_limited_total", Help: "TOTP checks refused by the account throttle."},
	{ID: backDashboard.MetricTOTPReplayRejected, Name: "authd_totp_replay_rejected_total", Help: "Valid codes rejected because their time step was already used."},
	{ID: backDashboard.MetricTOTPEnrolled, Name: "authd_totp_enrolled_total", Help: "TOTP secrets written."},
	{ID: backDashboard.MetricTOTPConfirmed, Name: "authd_totp_confirmed_total", Help: "TOTP enrollments confirmed."},
	{ID: backDashboard.MetricEnrollmentQueueFailure, Name: "authd_enrollment_queue_failure_total", Help: "Enrollment mails the delivery queue refused."},
	{ID: backDashboard.MetricRegisterSuccess, Name: "authd_register_success_total", Help: "Password accounts created."},
	{ID: backDashboard.MetricRegisterDuplicate, Name: "authd_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: backDashboard.MetricRegisterPolicyRejected, Name: "authd_register_policy_rejected_total", Help: "Registrations rejected by the password policy."},
	{ID: backDashboard.MetricExternalLinked, Name: "authd_external_linked_total", Help: "Provider identities merged into existing accounts."},
	{ID: backDashboard.MetricExternalCreated, Name: "authd_external_created_total", Help: "Accounts created from provider identities."},
	{ID: backDashboard.MetricExternalResolved, Name: "authd_external_resolved_total", Help: "Provider identities resolved to a linked account."},
	{ID: backDashboard.MetricExternalConflict, Name: "authd_external_conflict_total", Help: "Provider identities that could not be linked."},
	{ID: backDashboard.MetricGuardUnauthenticated, Name: "authd_guard_unauthenticated_total", Help: "Guarded calls without a valid token."},
	{ID: backDashboard.MetricGuardWrongPhase, Name: "authd_guard_wrong_phase_total", Help: "Guarded calls with a token in the wrong phase."},
	{ID: backDashboard.MetricGuardForbidden, Name: "authd_guard_forbidden_total", Help: "Guarded calls without a required role."},
	{ID: backDashboard.MetricRolesUpdated, Name: "authd_roles_updated_total", Help: "Role set changes."},
	{ID: backDashboard.MetricPasswordRehashed, Name: "authd_password_rehashed_total", Help: "Password hashes upgraded at login."},
}

var HistogramDefs = []HistogramDef{
	{ID: backDashboard.MetricValidateLatency, Name: "authd_validate_latency_seconds", Help: "Token validation latency."},
}

// HistogramBounds are the upper bounds in seconds of the first seven
// buckets; the eighth is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// publish one gauge per bucket.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
