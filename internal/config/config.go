// Package config loads the authd server configuration from a YAML file and
// AUTHD_* environment variables and turns it into an engine Config.
package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	backDashboard "github.com/orbitadevhub/backDashboard"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. AUTHD_HTTP_ADDR
// or AUTHD_STORE_DRIVER.
const EnvPrefix = "AUTHD"

// StoreDriver selects the account store backend.
type StoreDriver string

const (
	StoreMemory   StoreDriver = "memory"
	StorePostgres StoreDriver = "postgres"
	StoreMongo    StoreDriver = "mongo"
)

// Config is the server configuration.
type Config struct {
	HTTPAddr string        `mapstructure:"http_addr"`
	Log      LogConfig     `mapstructure:"log"`
	Store    StoreConfig   `mapstructure:"store"`
	Redis    RedisConfig   `mapstructure:"redis"`
	JWT      JWTConfig     `mapstructure:"jwt"`
	TOTP     TOTPConfig    `mapstructure:"totp"`
	Auth     AuthConfig    `mapstructure:"auth"`
	Google   GoogleConfig  `mapstructure:"google"`
	SMTP     SMTPConfig    `mapstructure:"smtp"`
	Cookie   CookieConfig  `mapstructure:"cookie"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
	Audit    AuditConfig   `mapstructure:"audit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

type StoreConfig struct {
	Driver      StoreDriver `mapstructure:"driver"`
	PostgresDSN string      `mapstructure:"postgres_dsn"`
	MongoURI    string      `mapstructure:"mongo_uri"`
	MongoDB     string      `mapstructure:"mongo_db"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig points at the signing material. With signing_method ed25519 and
// no key paths an ephemeral key pair is generated, which only suits local
// development since tokens do not survive a restart.
type JWTConfig struct {
	Issuer         string        `mapstructure:"issuer"`
	SigningMethod  string        `mapstructure:"signing_method"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	Secret         string        `mapstructure:"secret"`
	KeyID          string        `mapstructure:"key_id"`
	PendingTTL     time.Duration `mapstructure:"pending_ttl"`
	VerifiedTTL    time.Duration `mapstructure:"verified_ttl"`
}

type TOTPConfig struct {
	Issuer           string `mapstructure:"issuer"`
	EnrollOnRegister bool   `mapstructure:"enroll_on_register"`
	ReplayProtection bool   `mapstructure:"replay_protection"`
}

type AuthConfig struct {
	RequireMFAForExternalLogin   bool          `mapstructure:"require_mfa_for_external_login"`
	RequireVerifiedEmailForMerge bool          `mapstructure:"require_verified_email_for_merge"`
	MaxLoginAttempts             int           `mapstructure:"max_login_attempts"`
	LoginCooldown                time.Duration `mapstructure:"login_cooldown"`
}

type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	// SuccessURL receives the browser after the callback; empty answers
	// with JSON instead of a redirect.
	SuccessURL string `mapstructure:"success_url"`
}

// Enabled reports whether Google sign-in is configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RedirectURL != ""
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Enabled reports whether enrollment mail goes out over SMTP.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

type CookieConfig struct {
	Secure bool   `mapstructure:"secure"`
	Domain string `mapstructure:"domain"`
}

type MetricsConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Histograms bool `mapstructure:"histograms"`
}

type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", "0.0.0.0:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("store.driver", string(StoreMemory))
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_db", "backdashboard")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.issuer", "backDashboard")
	v.SetDefault("jwt.signing_method", "ed25519")
	v.SetDefault("jwt.private_key_path", "")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.key_id", "")
	v.SetDefault("jwt.pending_ttl", "5m")
	v.SetDefault("jwt.verified_ttl", "1h")

	v.SetDefault("totp.issuer", "backDashboard")
	v.SetDefault("totp.enroll_on_register", true)
	v.SetDefault("totp.replay_protection", true)

	v.SetDefault("auth.require_mfa_for_external_login", false)
	v.SetDefault("auth.require_verified_email_for_merge", true)
	v.SetDefault("auth.max_login_attempts", 5)
	v.SetDefault("auth.login_cooldown", "15m")

	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.redirect_url", "")
	v.SetDefault("google.success_url", "")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("cookie.secure", true)
	v.SetDefault("cookie.domain", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.histograms", false)
	v.SetDefault("audit.enabled", false)
}

// Load reads path when given, otherwise looks for authd.yaml in the working
// directory and /etc/authd. A missing file is not an error; environment
// variables always win over the file.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("authd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/authd/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the engine config does not cover.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("config: store.postgres_dsn is required for the postgres driver")
		}
	case StoreMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDB == "" {
			return errors.New("config: store.mongo_uri and store.mongo_db are required for the mongo driver")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Redis.Addr == "" {
		return errors.New("config: redis.addr is required")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

// Engine builds the engine configuration, loading key material from disk.
// ephemeral is true when a throwaway ed25519 key pair was generated.
func (c Config) Engine() (cfg backDashboard.Config, ephemeral bool, err error) {
	cfg = backDashboard.DefaultConfig()

	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.SigningMethod = c.JWT.SigningMethod
	cfg.JWT.KeyID = c.JWT.KeyID
	cfg.JWT.PendingTTL = c.JWT.PendingTTL
	cfg.JWT.VerifiedTTL = c.JWT.VerifiedTTL

	switch c.JWT.SigningMethod {
	case "hs256":
		if c.JWT.Secret == "" {
			return cfg, false, errors.New("config: jwt.secret is required for hs256")
		}
		cfg.JWT.PrivateKey = []byte(c.JWT.Secret)
	case "ed25519":
		if c.JWT.PrivateKeyPath == "" && c.JWT.PublicKeyPath == "" {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return cfg, false, fmt.Errorf("config: generate ed25519 key: %w", err)
			}
			cfg.JWT.PrivateKey = priv
			cfg.JWT.PublicKey = pub
			ephemeral = true
			break
		}
		if cfg.JWT.PrivateKey, err = readKey(c.JWT.PrivateKeyPath, "jwt.private_key_path"); err != nil {
			return cfg, false, err
		}
		if cfg.JWT.PublicKey, err = readKey(c.JWT.PublicKeyPath, "jwt.public_key_path"); err != nil {
			return cfg, false, err
		}
	default:
		return cfg, false, fmt.Errorf("config: unknown jwt.signing_method %q", c.JWT.SigningMethod)
	}

	cfg.TOTP.Issuer = c.TOTP.Issuer
	cfg.TOTP.EnrollOnRegister = c.TOTP.EnrollOnRegister
	cfg.TOTP.EnforceReplayProtection = c.TOTP.ReplayProtection

	cfg.External.RequireMFAForExternalLogin = c.Auth.RequireMFAForExternalLogin
	cfg.External.RequireVerifiedEmailForMerge = c.Auth.RequireVerifiedEmailForMerge
	cfg.Security.MaxLoginAttempts = c.Auth.MaxLoginAttempts
	cfg.Security.LoginCooldownDuration = c.Auth.LoginCooldown

	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Histograms
	cfg.Audit.Enabled = c.Audit.Enabled

	if err := cfg.Validate(); err != nil {
		return cfg, false, err
	}
	return cfg, ephemeral, nil
}

func readKey(path, key string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("config: %s is required", key)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", key, err)
	}
	return b, nil
}
