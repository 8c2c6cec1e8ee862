// Package guard evaluates ordered access checks against a session token.
//
// A [Chain] first validates the token, then runs its checks in order and stops
// at the first failure. Checks are pure functions of the claims and the
// [Operation]; nothing here touches account storage, so a role change only
// takes effect when a new token is issued.
package guard

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/orbitadevhub/backDashboard/jwt"
)

var (
	// ErrUnauthenticated wraps the token error when the token is absent or invalid.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrWrongAuthPhase means the token is valid but in the wrong phase.
	ErrWrongAuthPhase = errors.New("wrong authentication phase")
	// ErrForbidden means the token holds none of the required roles.
	ErrForbidden = errors.New("forbidden")
)

// Operation names a protected action and what it requires.
// A zero Phase means VERIFIED. Empty Roles admits any role.
type Operation struct {
	Name  string
	Phase jwt.Phase
	Roles []string
}

// RequiredPhase returns the phase the operation demands.
func (o Operation) RequiredPhase() jwt.Phase {
	if o.Phase == "" {
		return jwt.PhaseVerified
	}
	return o.Phase
}

// Check inspects validated claims. It returns nil to let the chain continue.
type Check func(claims *jwt.Claims, op Operation) error

// Validator parses and verifies a raw token.
type Validator interface {
	Parse(token string) (*jwt.Claims, error)
}

// Chain is an ordered list of checks behind a token validator.
type Chain struct {
	validator Validator
	checks    []Check
}

// New returns a chain running checks in the given order.
func New(v Validator, checks ...Check) *Chain {
	return &Chain{validator: v, checks: slices.Clone(checks)}
}

// Default is validity, then phase, then role.
func Default(v Validator) *Chain {
	return New(v, RequirePhase, RequireAnyRole)
}

// Evaluate validates token and applies every check for op. On success the
// verified claims are returned.
func (c *Chain) Evaluate(token string, op Operation) (*jwt.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	if c == nil || c.validator == nil {
		return nil, fmt.Errorf("%w: no validator", ErrUnauthenticated)
	}

	claims, err := c.validator.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	for _, check := range c.checks {
		if err := check(claims, op); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

// RequirePhase rejects tokens whose phase differs from op.RequiredPhase.
func RequirePhase(claims *jwt.Claims, op Operation) error {
	if claims.Phase != op.RequiredPhase() {
		return fmt.Errorf("%w: %s requires %s, token is %s", ErrWrongAuthPhase, op.Name, op.RequiredPhase(), claims.Phase)
	}
	return nil
}

// RequireAnyRole passes when the claims hold at least one of op.Roles.
func RequireAnyRole(claims *jwt.Claims, op Operation) error {
	if len(op.Roles) == 0 {
		return nil
	}
	for _, role := range op.Roles {
		if claims.HasRole(role) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s requires one of %v", ErrForbidden, op.Name, op.Roles)
}
