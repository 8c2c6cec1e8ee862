package totp

import (
	"bytes"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
)

const (
	// Period is the step length in seconds. Enrolled authenticator apps
	// only know the secret, so it cannot change after enrollment.
	Period = 30
	// Digits is the code length.
	Digits = 6
	// Algorithm is the HMAC hash authenticator apps assume.
	Algorithm = "SHA1"

	// SecretBytes is the raw secret size (160 bits).
	SecretBytes = 20
	// QRSize is the edge length in pixels of the rendered QR code.
	QRSize = 256
)

var (
	// ErrInvalidSecret is returned when a stored secret cannot be decoded.
	ErrInvalidSecret = errors.New("invalid totp secret")
	// ErrUnsupportedAlgorithm is returned for HMAC algorithms other than SHA1, SHA256, SHA512.
	ErrUnsupportedAlgorithm = errors.New("unsupported totp algorithm")
	// ErrIncompatible is returned by Validate for a step, length or
	// algorithm other than Period, Digits and Algorithm.
	ErrIncompatible = errors.New("totp parameters must be 30s steps, 6 digits, SHA1")
)

// Config controls code generation and the verification window.
type Config struct {
	Issuer    string
	Period    int
	Digits    int
	Skew      int
	Algorithm string
}

// DefaultConfig is 30 second steps, 6 digits, SHA1 and one step of skew.
func DefaultConfig(issuer string) Config {
	return Config{
		Issuer:    issuer,
		Period:    Period,
		Digits:    Digits,
		Skew:      1,
		Algorithm: Algorithm,
	}
}

// Validate rejects configurations authenticator apps cannot follow.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("totp issuer must be set")
	}
	if c.Period != Period || c.Digits != Digits || !strings.EqualFold(c.Algorithm, Algorithm) {
		return fmt.Errorf("%w: got %ds, %d digits, %s", ErrIncompatible, c.Period, c.Digits, c.Algorithm)
	}
	if c.Skew < 0 || c.Skew > 3 {
		return errors.New("totp skew must be between 0 and 3")
	}
	return nil
}

// Key is freshly generated enrollment material.
type Key struct {
	Secret string
	URI    string
	QRCode []byte
}

// Manager generates and verifies codes for one Config.
type Manager struct {
	config Config
}

// New returns a Manager for cfg.
func New(cfg Config) (*Manager, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{config: cfg}, nil
}

// Config returns a copy of the manager configuration.
func (m *Manager) Config() Config {
	return m.config
}

// Generate creates a new secret for accountName together with its
// otpauth:// URI and a PNG QR code of that URI.
func (m *Manager) Generate(accountName string) (Key, error) {
	opts, err := m.validateOpts()
	if err != nil {
		return Key{}, err
	}

	key, err := pqtotp.Generate(pqtotp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: accountName,
		Period:      opts.Period,
		SecretSize:  SecretBytes,
		Digits:      opts.Digits,
		Algorithm:   opts.Algorithm,
	})
	if err != nil {
		return Key{}, fmt.Errorf("generate totp key: %w", err)
	}

	img, err := key.Image(QRSize, QRSize)
	if err != nil {
		return Key{}, fmt.Errorf("render totp qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Key{}, fmt.Errorf("encode totp qr: %w", err)
	}

	return Key{
		Secret: key.Secret(),
		URI:    key.URL(),
		QRCode: buf.Bytes(),
	}, nil
}

// Verify checks code against secret for the steps around now. It returns the
// matched counter so callers can reject reuse of the same step.
// Codes of the wrong length or containing non-digits are invalid, not errors.
func (m *Manager) Verify(secret, code string, now time.Time) (bool, int64, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !isNumeric(trimmed) {
		return false, 0, nil
	}

	if _, err := DecodeSecret(secret); err != nil {
		return false, 0, err
	}
	secret = strings.TrimRight(strings.TrimSpace(secret), "=")
	opts, err := m.validateOpts()
	if err != nil {
		return false, 0, err
	}

	period := int64(m.config.Period)
	baseCounter := now.Unix() / period
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := pqtotp.GenerateCodeCustom(secret, time.Unix(counter*period, 0), opts)
		if err != nil {
			return false, 0, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}

	return false, 0, nil
}

// DecodeSecret accepts base32 with or without padding, in either case.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	if s == "" {
		return nil, ErrInvalidSecret
	}
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil || len(raw) == 0 {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}

func (m *Manager) validateOpts() (pqtotp.ValidateOpts, error) {
	algo, err := otpAlgorithm(m.config.Algorithm)
	if err != nil {
		return pqtotp.ValidateOpts{}, err
	}
	return pqtotp.ValidateOpts{
		Period:    uint(m.config.Period),
		Digits:    otp.Digits(m.config.Digits),
		Algorithm: algo,
	}, nil
}

func otpAlgorithm(algorithm string) (otp.Algorithm, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, ErrUnsupportedAlgorithm
	}
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
