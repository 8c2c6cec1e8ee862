package backDashboard

import (
	"errors"
	"time"

	"github.com/orbitadevhub/backDashboard/account"
	"github.com/orbitadevhub/backDashboard/guard"
	"github.com/orbitadevhub/backDashboard/internal/audit"
	"github.com/orbitadevhub/backDashboard/internal/rate"
	"github.com/orbitadevhub/backDashboard/internal/stores"
	"github.com/orbitadevhub/backDashboard/jwt"
	"github.com/orbitadevhub/backDashboard/notify"
	"github.com/orbitadevhub/backDashboard/password"
	"github.com/orbitadevhub/backDashboard/totp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an Engine. It is single use: configure, call Build once,
// then discard it.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	accounts  account.Store
	notifier  notify.Notifier
	auditSink audit.Sink
	logger    zerolog.Logger
	hasLogger bool

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used by the login throttle, the pending-login
// challenges and the TOTP replay ledger. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the Secret Store. Required.
func (b *Builder) WithAccountStore(s account.Store) *Builder {
	b.accounts = s
	return b
}

// WithNotifier sets where enrollment material is delivered. Without one the
// material is only logged.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	b.hasLogger = true
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger.With().Str("component", "engine").Logger()

	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	totpManager, err := totp.New(totp.Config{
		Issuer:    cfg.TOTP.Issuer,
		Period:    cfg.TOTP.Period,
		Digits:    cfg.TOTP.Digits,
		Skew:      cfg.TOTP.Skew,
		Algorithm: cfg.TOTP.Algorithm,
	})
	if err != nil {
		return nil, err
	}

	var engine *Engine
	tokens, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		PendingTTL:    cfg.JWT.PendingTTL,
		VerifiedTTL:   cfg.JWT.VerifiedTTL,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Clock:         func() time.Time { return engine.now() },
	})
	if err != nil {
		return nil, err
	}

	dummyHash, err := hasher.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, err
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = notify.LogNotifier{Logger: b.logger}
	}

	sink := b.auditSink
	if sink == nil && b.hasLogger {
		sink = audit.NewLoggerSink(b.logger)
	}

	engine = &Engine{
		config:   cfg,
		accounts: b.accounts,
		hasher:   hasher,
		policy: password.Policy{
			MinLength:      cfg.Password.MinLength,
			RequireUpper:   cfg.Password.RequireUpper,
			RequireSpecial: cfg.Password.RequireSpecial,
		},
		totp:   totpManager,
		tokens: tokens,
		limiter: rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
			MaxTOTPAttempts:       cfg.TOTP.MaxAttempts,
			TOTPCooldownDuration:  cfg.TOTP.Cooldown,
		}),
		pending: stores.NewPendingLoginStore(b.redis, ""),
		replay:  stores.NewTOTPReplayLedger(b.redis, ""),
		notifier: notify.NewQueue(notifier, notify.QueueConfig{
			BufferSize: cfg.Notify.BufferSize,
			Timeout:    cfg.Notify.Timeout,
		}, b.logger),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
		now:       time.Now,
		dummyHash: dummyHash,
	}
	engine.guards = guard.Default(engineValidator{engine})

	b.built = true

	return engine, nil
}
