package external

import (
	"context"
	"crypto/subtle"
	"time"
)

// Provider is an OAuth authorization-code provider.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Identity, error)
}

// Service pairs a provider with the state cache guarding its callback.
type Service struct {
	provider Provider
	states   *StateCache
	stateTTL time.Duration
}

// NewService wires provider with a state cache of the given lifetime.
func NewService(p Provider, stateTTL time.Duration) *Service {
	return &Service{provider: p, states: NewStateCache(stateTTL), stateTTL: stateTTL}
}

// StateTTL is how long a state from Begin stays redeemable.
func (s *Service) StateTTL() time.Duration {
	return s.stateTTL
}

// Begin starts a sign-in. It returns the provider redirect URL and the state
// embedded in it; the caller binds the state to the browser (a cookie) and
// hands it back to Complete.
func (s *Service) Begin() (redirectURL, state string) {
	state = s.states.Issue()
	return s.provider.AuthCodeURL(state), state
}

// Complete checks that state is the one bound to the browser, redeems it and
// exchanges code for the provider identity.
func (s *Service) Complete(ctx context.Context, state, boundState, code string) (Identity, error) {
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(boundState)) != 1 {
		return Identity{}, ErrStateInvalid
	}
	if !s.states.Consume(state) {
		return Identity{}, ErrStateInvalid
	}
	return s.provider.Exchange(ctx, code)
}

// Close releases the state cache.
func (s *Service) Close() {
	s.states.Stop()
}
