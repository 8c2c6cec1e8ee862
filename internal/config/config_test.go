package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)
	require.Equal(t, StoreMemory, cfg.Store.Driver)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 5*time.Minute, cfg.JWT.PendingTTL)
	require.Equal(t, time.Hour, cfg.JWT.VerifiedTTL)
	require.False(t, cfg.Auth.RequireMFAForExternalLogin)
	require.True(t, cfg.Auth.RequireVerifiedEmailForMerge)
	require.True(t, cfg.TOTP.EnrollOnRegister)
	require.False(t, cfg.Google.Enabled())
	require.False(t, cfg.SMTP.Enabled())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "authd.yaml", `
http_addr: ":9000"
log:
  level: debug
  format: json
store:
  driver: postgres
  postgres_dsn: postgres://localhost/auth
jwt:
  pending_ttl: 2m
auth:
  require_mfa_for_external_login: true
google:
  client_id: id
  client_secret: secret
  redirect_url: http://localhost/auth/google/callback
`)
	t.Setenv("AUTHD_HTTP_ADDR", ":9100")
	t.Setenv("AUTHD_REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9100", cfg.HTTPAddr)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, StorePostgres, cfg.Store.Driver)
	require.Equal(t, "postgres://localhost/auth", cfg.Store.PostgresDSN)
	require.Equal(t, 2*time.Minute, cfg.JWT.PendingTTL)
	require.True(t, cfg.Auth.RequireMFAForExternalLogin)
	require.True(t, cfg.Google.Enabled())
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown driver", content: "store:\n  driver: sqlite\n"},
		{name: "postgres without dsn", content: "store:\n  driver: postgres\n"},
		{name: "unknown log format", content: "log:\n  format: xml\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, dir, "authd.yaml", tc.content)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestEngineEphemeralKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	engineCfg, ephemeral, err := cfg.Engine()
	require.NoError(t, err)
	require.True(t, ephemeral)
	require.Len(t, engineCfg.JWT.PrivateKey, ed25519.PrivateKeySize)
	require.Len(t, engineCfg.JWT.PublicKey, ed25519.PublicKeySize)
	require.Equal(t, 5*time.Minute, engineCfg.JWT.PendingTTL)
	require.False(t, engineCfg.External.RequireMFAForExternalLogin)
	require.Equal(t, 5, engineCfg.Security.MaxLoginAttempts)
}

func TestEngineLoadsPEMKeys(t *testing.T) {
	dir := t.TempDir()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)

	privPath := writeFile(t, dir, "jwt.key", string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})))
	pubPath := writeFile(t, dir, "jwt.pub", string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})))

	cfg := Config{
		JWT: JWTConfig{
			Issuer:         "backDashboard",
			SigningMethod:  "ed25519",
			PrivateKeyPath: privPath,
			PublicKeyPath:  pubPath,
			PendingTTL:     5 * time.Minute,
			VerifiedTTL:    time.Hour,
		},
		TOTP: TOTPConfig{Issuer: "backDashboard"},
		Auth: AuthConfig{MaxLoginAttempts: 5, LoginCooldown: time.Minute},
	}

	engineCfg, ephemeral, err := cfg.Engine()
	require.NoError(t, err)
	require.False(t, ephemeral)
	require.Contains(t, string(engineCfg.JWT.PrivateKey), "PRIVATE KEY")
}

func TestEngineRequiresSecretForHS256(t *testing.T) {
	cfg := Config{JWT: JWTConfig{SigningMethod: "hs256"}}
	_, _, err := cfg.Engine()
	require.Error(t, err)
}
