package backDashboard

import (
	"testing"
	"time"
)

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without keys to be rejected")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"pending ttl too long", func(c *Config) { c.JWT.PendingTTL = 20 * time.Minute }},
		{"verified ttl too short", func(c *Config) { c.JWT.VerifiedTTL = 5 * time.Minute }},
		{"pending not shorter", func(c *Config) { c.JWT.PendingTTL = 15 * time.Minute; c.JWT.VerifiedTTL = 15 * time.Minute }},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs256" }},
		{"short hs256 key", func(c *Config) { c.JWT.SigningMethod = "hs256"; c.JWT.PrivateKey = []byte("short") }},
		{"digits", func(c *Config) { c.TOTP.Digits = 7 }},
		{"eight digits", func(c *Config) { c.TOTP.Digits = 8 }},
		{"period", func(c *Config) { c.TOTP.Period = 60 }},
		{"zero period", func(c *Config) { c.TOTP.Period = 0 }},
		{"algorithm", func(c *Config) { c.TOTP.Algorithm = "SHA256" }},
		{"skew", func(c *Config) { c.TOTP.Skew = 4 }},
		{"pending attempts", func(c *Config) { c.TOTP.MaxPendingAttempts = 0 }},
		{"argon memory", func(c *Config) { c.Password.Memory = 1024 }},
		{"login attempts", func(c *Config) { c.Security.MaxLoginAttempts = 0 }},
		{"no roles", func(c *Config) { c.Account.Roles = nil }},
		{"unknown default role", func(c *Config) { c.Account.DefaultRoles = []string{"GUEST"} }},
		{"audit buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			if err := cfg.Validate(); err != nil {
				t.Fatalf("base config invalid: %v", err)
			}
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWithConfigClones(t *testing.T) {
	cfg := testConfig(t)
	b := New().WithConfig(cfg)
	cfg.Account.Roles[0] = "MUTATED"
	cfg.JWT.PrivateKey[0] ^= 0xff

	if b.config.Account.Roles[0] == "MUTATED" {
		t.Fatal("builder config shares the roles slice")
	}
	if b.config.JWT.PrivateKey[0] == cfg.JWT.PrivateKey[0] {
		t.Fatal("builder config shares the key bytes")
	}
}
