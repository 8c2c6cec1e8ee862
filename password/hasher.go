package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hasher writes argon2id hashes and verifies both argon2id and legacy bcrypt
// hashes, so accounts imported from the previous backend keep working until
// their next password change.
type Hasher struct {
	argon *Argon2
}

// NewHasher wraps an argon2id configuration.
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: a}, nil
}

// Hash always produces an argon2id hash.
func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify dispatches on the hash prefix. A mismatch is (false, nil); an
// error means the stored hash itself is unusable.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	switch {
	case isArgon2Hash(encodedHash):
		return h.argon.Verify(password, encodedHash)
	case isBcryptHash(encodedHash):
		if len(password) > h.argon.config.MaxPasswordBytes {
			return false, ErrTooLong
		}
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword),
			errors.Is(err, bcrypt.ErrPasswordTooLong):
			return false, nil
		default:
			return false, ErrMalformedHash
		}
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsUpgrade is true for every bcrypt hash and for argon2id hashes with
// weaker parameters than configured.
func (h *Hasher) NeedsUpgrade(encodedHash string) bool {
	if isBcryptHash(encodedHash) {
		return true
	}
	upgrade, err := h.argon.NeedsUpgrade(encodedHash)
	return err == nil && upgrade
}

func isBcryptHash(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
