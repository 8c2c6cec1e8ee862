package account

import (
	"context"
	"errors"
	"time"
)

const (
	// RoleUser is granted to every account at creation.
	RoleUser = "USER"
	// RoleAdmin unlocks administrative operations such as role updates.
	RoleAdmin = "ADMIN"
)

var (
	// ErrNotFound is returned by Store lookups that match no account.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned by Store.Create and Store.Update when an email
	// or external identity is already owned by another account.
	ErrDuplicate = errors.New("account already exists")
	// ErrInvalid is returned when a Draft or Patch would break an Account invariant.
	ErrInvalid = errors.New("invalid account")
)

// Account is an immutable snapshot of a stored user record.
//
// Values returned by a Store are copies; mutating one never changes stored
// state. Changes go through Store.Update with a Patch.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	ExternalID   string
	Roles        []string
	TOTPSecret   string
	TOTPEnabled  bool
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep copy of a.
func (a Account) Clone() Account {
	out := a
	out.Roles = cloneRoles(a.Roles)
	return out
}

// HasPassword reports whether the account was registered locally.
func (a Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// HasRole reports whether role is in the account's role set.
func (a Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Enrolled reports whether a TOTP secret has been written for the account.
func (a Account) Enrolled() bool {
	return a.TOTPSecret != ""
}

// Draft carries the fields needed to create an account. The store assigns
// the ID and timestamps.
type Draft struct {
	Email        string
	PasswordHash string
	ExternalID   string
	Roles        []string
	FirstName    string
	LastName     string
}

// Validate checks the creation invariants: canonical email, at least one
// authentication method and a non-empty role set.
func (d Draft) Validate() error {
	if d.Email == "" || CanonicalEmail(d.Email) != d.Email {
		return errors.Join(ErrInvalid, errors.New("email must be canonical"))
	}
	if d.PasswordHash == "" && d.ExternalID == "" {
		return errors.Join(ErrInvalid, errors.New("password hash or external id required"))
	}
	if len(d.Roles) == 0 {
		return errors.Join(ErrInvalid, errors.New("at least one role required"))
	}
	return nil
}

// Account materializes the draft as an account with the given id and
// creation time.
func (d Draft) Account(id string, now time.Time) Account {
	return Account{
		ID:           id,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		ExternalID:   d.ExternalID,
		Roles:        cloneRoles(d.Roles),
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	PasswordHash *string
	ExternalID   *string
	Roles        []string
	TOTPSecret   *string
	TOTPEnabled  *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.PasswordHash == nil &&
		p.ExternalID == nil &&
		p.Roles == nil &&
		p.TOTPSecret == nil &&
		p.TOTPEnabled == nil
}

// Apply returns a copy of a with the patch applied. The result is checked
// against the account invariants.
func (p Patch) Apply(a Account, now time.Time) (Account, error) {
	out := a.Clone()
	if p.PasswordHash != nil {
		out.PasswordHash = *p.PasswordHash
	}
	if p.ExternalID != nil {
		out.ExternalID = *p.ExternalID
	}
	if p.Roles != nil {
		out.Roles = cloneRoles(p.Roles)
	}
	if p.TOTPSecret != nil {
		out.TOTPSecret = *p.TOTPSecret
	}
	if p.TOTPEnabled != nil {
		out.TOTPEnabled = *p.TOTPEnabled
	}
	if out.PasswordHash == "" && out.ExternalID == "" {
		return Account{}, errors.Join(ErrInvalid, errors.New("account would have no authentication method"))
	}
	if len(out.Roles) == 0 {
		return Account{}, errors.Join(ErrInvalid, errors.New("account would have no roles"))
	}
	if out.TOTPEnabled && out.TOTPSecret == "" {
		return Account{}, errors.Join(ErrInvalid, errors.New("totp cannot be enabled without a secret"))
	}
	out.UpdatedAt = now
	return out, nil
}

// Store is the persistence boundary for accounts.
//
// Implementations must enforce email and external id uniqueness themselves
// (unique index, unique constraint or an atomic insert) and report conflicts
// as ErrDuplicate. Lookups that match nothing return ErrNotFound.
type Store interface {
	FindByID(ctx context.Context, id string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByExternalID(ctx context.Context, externalID string) (Account, error)
	Create(ctx context.Context, draft Draft) (Account, error)
	Update(ctx context.Context, id string, patch Patch) (Account, error)
}

// String returns a pointer to v for use in a Patch.
func String(v string) *string { return &v }

// Bool returns a pointer to v for use in a Patch.
func Bool(v bool) *bool { return &v }

func cloneRoles(roles []string) []string {
	if roles == nil {
		return nil
	}
	out := make([]string, len(roles))
	copy(out, roles)
	return out
}
