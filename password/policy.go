package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrPolicy is wrapped by every Policy.Check failure.
var ErrPolicy = errors.New("password policy violation")

// specialCharacters is the set accepted as "special" by the registration form.
const specialCharacters = `!@#$%^&*(),.?":{}|<>`

// Policy describes the minimum password complexity for registration.
type Policy struct {
	MinLength      int
	RequireUpper   bool
	RequireSpecial bool
}

// DefaultPolicy requires eight characters including one upper-case letter and
// one special character.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		RequireUpper:   true,
		RequireSpecial: true,
	}
}

// Check returns nil when password satisfies p.
func (p Policy) Check(password string) error {
	if utf8.RuneCountInString(password) < p.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPolicy, p.MinLength)
	}
	if p.RequireUpper && strings.IndexFunc(password, unicode.IsUpper) < 0 {
		return fmt.Errorf("%w: must include an upper-case letter", ErrPolicy)
	}
	if p.RequireSpecial && !strings.ContainsAny(password, specialCharacters) {
		return fmt.Errorf("%w: must include a special character", ErrPolicy)
	}
	return nil
}
