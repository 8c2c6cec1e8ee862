package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/orbitadevhub/backDashboard/guard"
	"github.com/orbitadevhub/backDashboard/jwt"
)

// Authorizer runs the guard chain for an operation. *backDashboard.Engine
// satisfies it.
type Authorizer interface {
	Authorize(token string, op guard.Operation) (*jwt.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims injected by Protect.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.Claims)
	return claims, ok
}

// WithClaims stores claims in ctx the way Protect does.
func WithClaims(ctx context.Context, claims *jwt.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// Protect rejects requests that do not pass the chain for op.
func Protect(a Authorizer, op guard.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, _ := TokenFromRequest(r)
			claims, err := a.Authorize(token, op)
			if err != nil {
				status := Status(err)
				http.Error(w, http.StatusText(status), status)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Status maps a guard error to its HTTP status.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, guard.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}
