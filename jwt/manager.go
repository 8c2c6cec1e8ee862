package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Phase is the authentication phase asserted by a token.
type Phase string

const (
	PhasePending  Phase = "PENDING"
	PhaseVerified Phase = "VERIFIED"
)

const (
	// MaxPendingTTL caps the lifetime of a PENDING token.
	MaxPendingTTL = 15 * time.Minute
	// MinVerifiedTTL is the shortest allowed VERIFIED lifetime.
	MinVerifiedTTL = 10 * time.Minute
)

var (
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
)

// Config holds signing keys and phase lifetimes.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	PendingTTL    time.Duration
	VerifiedTTL   time.Duration
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	// VerifyKeys maps kid to verification key and enables rotation: tokens
	// signed by any listed key are accepted.
	VerifyKeys map[string][]byte
	// Clock overrides time.Now for issuing and validating.
	Clock func() time.Time
}

// Claims is the decoded payload of a session token.
type Claims struct {
	Phase Phase    `json:"phase"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// AccountID is the token subject.
func (c *Claims) AccountID() string {
	return c.Subject
}

// HasRole reports whether role is in the roles snapshot.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// Token is a signed token with the fields callers need without reparsing it.
type Token struct {
	Value     string
	ID        string
	Phase     Phase
	ExpiresAt time.Time
}

// Manager signs and verifies tokens. It is immutable after NewManager and safe
// for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("issuer must be set")
	}
	if cfg.PendingTTL <= 0 || cfg.PendingTTL > MaxPendingTTL {
		return nil, errors.New("pending TTL must be > 0 and <= 15m")
	}
	if cfg.VerifiedTTL < MinVerifiedTTL {
		return nil, errors.New("verified TTL must be >= 10m")
	}
	if cfg.PendingTTL >= cfg.VerifiedTTL {
		return nil, errors.New("pending TTL must be shorter than verified TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// Audience returns the audience string bound to phase.
func (j *Manager) Audience(phase Phase) string {
	switch phase {
	case PhasePending:
		return j.config.Issuer + "/pending"
	default:
		return j.config.Issuer + "/session"
	}
}

// TTL returns the lifetime of tokens minted for phase.
func (j *Manager) TTL(phase Phase) time.Duration {
	if phase == PhasePending {
		return j.config.PendingTTL
	}
	return j.config.VerifiedTTL
}

// Issue signs a token for subject in phase carrying a copy of roles.
func (j *Manager) Issue(subject string, phase Phase, roles []string) (Token, error) {
	if subject == "" {
		return Token{}, errors.New("token subject must be set")
	}
	if phase != PhasePending && phase != PhaseVerified {
		return Token{}, fmt.Errorf("unknown phase %q", phase)
	}

	now := j.now()
	exp := now.Add(j.TTL(phase))
	claims := Claims{
		Phase: phase,
		Roles: slices.Clone(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    j.config.Issuer,
			Audience:  jwt.ClaimStrings{j.Audience(phase)},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return Token{}, err
	}
	signed, err := token.SignedString(signKey)
	if err != nil {
		return Token{}, err
	}

	return Token{
		Value:     signed,
		ID:        claims.ID,
		Phase:     phase,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Parse verifies tokenStr and returns its claims. Errors wrap exactly one of
// ErrExpired, ErrSignatureInvalid or ErrMalformed.
func (j *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithIssuer(j.config.Issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, j.keyFunc)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	if claims.Phase != PhasePending && claims.Phase != PhaseVerified {
		return nil, fmt.Errorf("%w: unknown phase %q", ErrMalformed, claims.Phase)
	}
	if !slices.Contains(claims.Audience, j.Audience(claims.Phase)) {
		return nil, fmt.Errorf("%w: audience does not match phase", ErrMalformed)
	}
	if claims.IssuedAt != nil && j.config.MaxFutureIAT > 0 {
		maxAllowed := j.now().Add(j.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, fmt.Errorf("%w: iat too far in the future", ErrMalformed)
		}
	}

	return claims, nil
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.getMethod().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return j.keyBytesToVerifyKey(key)
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return j.getVerifyKey()
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		if len(j.config.PrivateKey) == 0 {
			return nil, errors.New("manager has no signing key")
		}
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
