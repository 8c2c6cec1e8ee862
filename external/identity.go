// Package external handles sign-in through third-party identity providers.
//
// A provider turns an authorization code into an [Identity]. What happens
// next (find, merge or create the local account) is the engine's job; this
// package only speaks OAuth and keeps the CSRF state.
package external

import (
	"errors"
	"strings"
)

var (
	// ErrStateInvalid means the callback state is unknown, reused or expired.
	ErrStateInvalid = errors.New("oauth state invalid")
	// ErrExchange wraps failures talking to the provider.
	ErrExchange = errors.New("oauth exchange failed")
	// ErrIncompleteIdentity means the provider did not return a subject or email.
	ErrIncompleteIdentity = errors.New("provider identity incomplete")
)

// Identity is what a provider asserts about the signed-in user.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
}

// ExternalID is the stable key stored on the account, "<provider>:<subject>".
func (i Identity) ExternalID() string {
	return i.Provider + ":" + i.Subject
}

// Validate checks the fields linking depends on.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.Provider) == "" || strings.TrimSpace(i.Subject) == "" {
		return ErrIncompleteIdentity
	}
	if strings.TrimSpace(i.Email) == "" {
		return ErrIncompleteIdentity
	}
	return nil
}
