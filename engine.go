package backDashboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/orbitadevhub/backDashboard/account"
	"github.com/orbitadevhub/backDashboard/guard"
	"github.com/orbitadevhub/backDashboard/internal/audit"
	"github.com/orbitadevhub/backDashboard/internal/rate"
	"github.com/orbitadevhub/backDashboard/internal/stores"
	"github.com/orbitadevhub/backDashboard/jwt"
	"github.com/orbitadevhub/backDashboard/notify"
	"github.com/orbitadevhub/backDashboard/password"
	"github.com/orbitadevhub/backDashboard/totp"
	"github.com/rs/zerolog"
)

// Engine runs the authentication flows. It is immutable after Build and safe
// for concurrent use; all mutable state lives in the account store and Redis.
type Engine struct {
	config    Config
	accounts  account.Store
	hasher    *password.Hasher
	policy    password.Policy
	totp      *totp.Manager
	tokens    *jwt.Manager
	guards    *guard.Chain
	limiter   *rate.Limiter
	pending   *stores.PendingLoginStore
	replay    *stores.TOTPReplayLedger
	notifier  *notify.Queue
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    zerolog.Logger
	now       func() time.Time
	dummyHash string
}

// Close drains the notification queue and the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.notifier != nil {
		e.notifier.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped is the number of audit events lost to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// NotifyStats reports enrollment delivery outcomes.
func (e *Engine) NotifyStats() notify.Stats {
	if e == nil || e.notifier == nil {
		return notify.Stats{}
	}
	return e.notifier.Stats()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// ValidateToken verifies signature, expiry, issuer and phase audience. It
// never touches a store.
func (e *Engine) ValidateToken(token string) (*jwt.Claims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}
	claims, err := e.tokens.Parse(token)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	return claims, err
}

// Authorize runs the guard chain for op: token validity, then phase, then
// role. Errors are ErrUnauthenticated, ErrWrongAuthPhase or ErrForbidden.
func (e *Engine) Authorize(token string, op guard.Operation) (*jwt.Claims, error) {
	if e == nil || e.guards == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.guards.Evaluate(token, op)
	switch {
	case err == nil:
	case errors.Is(err, ErrWrongAuthPhase):
		e.metricInc(MetricGuardWrongPhase)
	case errors.Is(err, ErrForbidden):
		e.metricInc(MetricGuardForbidden)
	default:
		e.metricInc(MetricGuardUnauthenticated)
	}
	return claims, err
}

// engineValidator routes guard token checks through ValidateToken so they
// are timed like direct calls.
type engineValidator struct {
	e *Engine
}

func (v engineValidator) Parse(token string) (*jwt.Claims, error) {
	return v.e.ValidateToken(token)
}

func (e *Engine) issue(a account.Account, phase jwt.Phase) (*LoginResult, jwt.Token, error) {
	tok, err := e.tokens.Issue(a.ID, phase, a.Roles)
	if err != nil {
		return nil, jwt.Token{}, fmt.Errorf("%w: issue token: %v", ErrInternal, err)
	}
	return &LoginResult{
		Token:        tok.Value,
		Phase:        tok.Phase,
		ExpiresAt:    tok.ExpiresAt,
		AccountID:    a.ID,
		TOTPRequired: phase == jwt.PhasePending,
	}, tok, nil
}

// storeError maps account store failures onto the engine taxonomy.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, account.ErrNotFound):
		return ErrAccountNotFound
	case errors.Is(err, account.ErrDuplicate):
		return ErrDuplicateAccount
	case errors.Is(err, account.ErrInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
