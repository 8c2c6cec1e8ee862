package backDashboard

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/orbitadevhub/backDashboard/account"
	"github.com/orbitadevhub/backDashboard/jwt"
	"github.com/orbitadevhub/backDashboard/totp"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override; Validate runs again in Build.
type Config struct {
	JWT      JWTConfig
	TOTP     TOTPConfig
	Password PasswordConfig
	Security SecurityConfig
	External ExternalConfig
	Account  AccountConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Notify   NotifyConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds token signing and phase lifetimes.
type JWTConfig struct {
	Issuer        string
	PendingTTL    time.Duration
	VerifiedTTL   time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	VerifyKeys    map[string][]byte
	Leeway        time.Duration
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls the second factor.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Skew      int
	Algorithm string
	// EnforceReplayProtection rejects a code whose time step was already
	// accepted for the same account.
	EnforceReplayProtection bool
	// MaxPendingAttempts bounds wrong codes per PENDING token.
	MaxPendingAttempts int
	// MaxAttempts and Cooldown bound wrong codes per account across tokens.
	MaxAttempts int
	Cooldown    time.Duration
	// EnrollOnRegister generates and mails a secret right after registration.
	EnrollOnRegister bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id costs and the registration policy.
type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool

	MinLength      int
	RequireUpper   bool
	RequireSpecial bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds the password-step throttling.
type SecurityConfig struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

/*
====================================
EXTERNAL IDENTITY CONFIG
====================================
*/

// ExternalConfig governs sign-in through identity providers.
type ExternalConfig struct {
	// RequireMFAForExternalLogin issues a PENDING token after provider
	// sign-in when the account has TOTP enabled. Off by default: the
	// provider is trusted as a complete authentication.
	RequireMFAForExternalLogin bool
	// RequireVerifiedEmailForMerge only links a provider identity to an
	// existing password account when the provider asserts the email is
	// verified.
	RequireVerifiedEmailForMerge bool
	StateTTL                     time.Duration
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig lists the known roles and the roles new accounts receive.
type AccountConfig struct {
	Roles        []string
	DefaultRoles []string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// NotifyConfig sizes the enrollment delivery queue.
type NotifyConfig struct {
	BufferSize int
	Timeout    time.Duration
}

// DefaultConfig returns production defaults without signing keys.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:        "backDashboard",
			PendingTTL:    5 * time.Minute,
			VerifiedTTL:   time.Hour,
			SigningMethod: "ed25519",
			Leeway:        5 * time.Second,
		},
		TOTP: TOTPConfig{
			Issuer:                  "backDashboard",
			Digits:                  totp.Digits,
			Period:                  totp.Period,
			Skew:                    1,
			Algorithm:               totp.Algorithm,
			EnforceReplayProtection: true,
			MaxPendingAttempts:      5,
			MaxAttempts:             10,
			Cooldown:                5 * time.Minute,
			EnrollOnRegister:        true,
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			UpgradeOnLogin:   true,
			MinLength:        8,
			RequireUpper:     true,
			RequireSpecial:   true,
		},
		Security: SecurityConfig{
			EnableIPThrottle:      true,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		External: ExternalConfig{
			RequireMFAForExternalLogin:   false,
			RequireVerifiedEmailForMerge: true,
			StateTTL:                     10 * time.Minute,
		},
		Account: AccountConfig{
			Roles:        []string{account.RoleUser, account.RoleAdmin},
			DefaultRoles: []string{account.RoleUser},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Notify: NotifyConfig{
			BufferSize: 64,
			Timeout:    30 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.Account.Roles = slices.Clone(cfg.Account.Roles)
	out.Account.DefaultRoles = slices.Clone(cfg.Account.DefaultRoles)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// JWT
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer must be set")
	}
	if c.JWT.PendingTTL <= 0 || c.JWT.PendingTTL > jwt.MaxPendingTTL {
		return errors.New("JWT PendingTTL must be > 0 and <= 15m")
	}
	if c.JWT.VerifiedTTL < jwt.MinVerifiedTTL {
		return errors.New("JWT VerifiedTTL must be >= 10m")
	}
	if c.JWT.PendingTTL >= c.JWT.VerifiedTTL {
		return errors.New("JWT PendingTTL must be shorter than VerifiedTTL")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey or VerifyKeys")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// TOTP
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer must be set")
	}
	// Accounts store only the secret, so these are fixed for every enrollment.
	if c.TOTP.Period != totp.Period {
		return fmt.Errorf("TOTP Period must be %d", totp.Period)
	}
	if c.TOTP.Digits != totp.Digits {
		return fmt.Errorf("TOTP Digits must be %d", totp.Digits)
	}
	if c.TOTP.Algorithm != "" && !strings.EqualFold(c.TOTP.Algorithm, totp.Algorithm) {
		return fmt.Errorf("TOTP Algorithm must be %s", totp.Algorithm)
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 3 {
		return errors.New("TOTP Skew must be between 0 and 3")
	}
	if c.TOTP.MaxPendingAttempts <= 0 {
		return errors.New("TOTP MaxPendingAttempts must be > 0")
	}
	if c.TOTP.MaxAttempts <= 0 || c.TOTP.Cooldown <= 0 {
		return errors.New("TOTP MaxAttempts and Cooldown must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 0 {
		return errors.New("Password MinLength must be >= 0")
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("Security MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0")
	}

	// Accounts
	if len(c.Account.Roles) == 0 {
		return errors.New("Account Roles must not be empty")
	}
	if len(c.Account.DefaultRoles) == 0 {
		return errors.New("Account DefaultRoles must not be empty")
	}
	for _, r := range c.Account.DefaultRoles {
		if !slices.Contains(c.Account.Roles, r) {
			return fmt.Errorf("Account DefaultRoles contains unknown role %q", r)
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
