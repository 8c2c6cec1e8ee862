package httpapi

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	backDashboard "github.com/orbitadevhub/backDashboard"
	"github.com/orbitadevhub/backDashboard/account"
	"github.com/orbitadevhub/backDashboard/external"
	"github.com/orbitadevhub/backDashboard/metrics/export/prometheus"
	"github.com/orbitadevhub/backDashboard/middleware"
	"github.com/orbitadevhub/backDashboard/notify"
	"github.com/orbitadevhub/backDashboard/store/memory"
	pqtotp "github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	anaEmail    = "Ana@Example.com"
	anaPassword = "P@ssw0rd!"
)

type fakeProvider struct {
	id external.Identity
}

func (fakeProvider) Name() string { return "google" }

func (fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (p fakeProvider) Exchange(context.Context, string) (external.Identity, error) {
	return p.id, nil
}

type apiEnv struct {
	engine *backDashboard.Engine
	server *echo.Echo
	google *external.Service
}

func newAPIEnv(t *testing.T, mutate func(*backDashboard.Config)) *apiEnv {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	cfg := backDashboard.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	if mutate != nil {
		mutate(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	engine, err := backDashboard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(memory.New()).
		WithNotifier(notify.NotifierFunc(func(context.Context, string, notify.Material) error { return nil })).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	google := external.NewService(fakeProvider{id: external.Identity{
		Provider:      "google",
		Subject:       "1077",
		Email:         "luis@example.com",
		EmailVerified: true,
		FirstName:     "Luis",
	}}, time.Minute)
	t.Cleanup(google.Close)

	server := NewServer(engine, Options{
		Google:  google,
		Metrics: prometheus.Handler(engine),
		Logger:  zerolog.Nop(),
	})
	return &apiEnv{engine: engine, server: server, google: google}
}

func (env *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload string
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		payload = string(b)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := pqtotp.GenerateCode(secret, at)
	require.NoError(t, err)
	return code
}

func (env *apiEnv) login(t *testing.T, email, pass string) tokenResponse {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: email, Password: pass})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[tokenResponse](t, rec)
}

func TestRegisterLoginAndTwoFactorFlow(t *testing.T) {
	env := newAPIEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/auth/register", "", registerRequest{
		Email:     anaEmail,
		Password:  anaPassword,
		FirstName: "Ana",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[registerResponse](t, rec)
	require.Equal(t, "ana@example.com", reg.Account.Email)
	require.Equal(t, []string{account.RoleUser}, reg.Account.Roles)
	require.False(t, reg.Account.TOTPEnabled)
	require.NotNil(t, reg.TOTP)
	require.True(t, strings.HasPrefix(reg.TOTP.QRCode, "data:image/png;base64,"))

	// Enrolled but not confirmed: the password alone is enough.
	verified := env.login(t, anaEmail, anaPassword)
	require.False(t, verified.MFARequired)
	require.Equal(t, string(backDashboard.PhaseVerified), verified.Phase)

	rec = env.do(t, http.MethodPost, "/auth/2fa/confirm", verified.Token, codeRequest{Code: totpCode(t, reg.TOTP.Secret, time.Now())})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	pending := env.login(t, anaEmail, anaPassword)
	require.True(t, pending.MFARequired)
	require.Equal(t, string(backDashboard.PhasePending), pending.Phase)

	// A PENDING token opens nothing but the verify route.
	rec = env.do(t, http.MethodGet, "/users/me", pending.Token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/2fa/verify", pending.Token, codeRequest{Code: "000000"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	next := totpCode(t, reg.TOTP.Secret, time.Now().Add(30*time.Second))
	rec = env.do(t, http.MethodPost, "/auth/2fa/verify", pending.Token, codeRequest{Code: next})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	final := decode[tokenResponse](t, rec)
	require.Equal(t, string(backDashboard.PhaseVerified), final.Phase)

	// A VERIFIED token cannot be used on the verify route.
	rec = env.do(t, http.MethodPost, "/auth/2fa/verify", final.Token, codeRequest{Code: next})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/users/me", final.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[profileResponse](t, rec)
	require.Equal(t, "ana@example.com", me.Email)
	require.True(t, me.TOTPEnabled)
}

func TestRegisterErrors(t *testing.T) {
	env := newAPIEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/auth/register", "", registerRequest{Email: anaEmail, Password: "weak"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decode[errorResponse](t, rec).Error, "password policy violation")

	rec = env.do(t, http.MethodPost, "/auth/register", "", registerRequest{Email: anaEmail, Password: anaPassword})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/register", "", registerRequest{Email: "ana@example.com", Password: anaPassword})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginDoesNotRevealAccounts(t *testing.T) {
	env := newAPIEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/auth/register", "", registerRequest{Email: anaEmail, Password: anaPassword})
	require.Equal(t, http.StatusCreated, rec.Code)

	wrong := env.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: anaEmail, Password: "Wrong!pass1"})
	missing := env.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "nobody@example.com", Password: anaPassword})

	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	require.Equal(t, http.StatusUnauthorized, missing.Code)
	require.JSONEq(t, wrong.Body.String(), missing.Body.String())
}

func TestUpdateRolesRequiresAdmin(t *testing.T) {
	env := newAPIEnv(t, func(cfg *backDashboard.Config) {
		cfg.TOTP.EnrollOnRegister = false
	})
	ctx := context.Background()

	admin, err := env.engine.Register(ctx, backDashboard.RegisterRequest{Email: "root@example.com", Password: anaPassword})
	require.NoError(t, err)
	_, err = env.engine.UpdateRoles(ctx, admin.Account.ID, []string{account.RoleUser, account.RoleAdmin})
	require.NoError(t, err)
	ana, err := env.engine.Register(ctx, backDashboard.RegisterRequest{Email: anaEmail, Password: anaPassword})
	require.NoError(t, err)

	user := env.login(t, anaEmail, anaPassword)
	rec := env.do(t, http.MethodPatch, "/users/"+ana.Account.ID+"/roles", user.Token, rolesRequest{Roles: []string{account.RoleAdmin}})
	require.Equal(t, http.StatusForbidden, rec.Code)

	root := env.login(t, "root@example.com", anaPassword)
	rec = env.do(t, http.MethodPatch, "/users/"+ana.Account.ID+"/roles", root.Token, rolesRequest{Roles: []string{account.RoleUser, account.RoleAdmin}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.ElementsMatch(t, []string{account.RoleUser, account.RoleAdmin}, decode[profileResponse](t, rec).Roles)

	rec = env.do(t, http.MethodPatch, "/users/"+ana.Account.ID+"/roles", root.Token, rolesRequest{Roles: []string{"OWNER"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/users/missing/roles", root.Token, rolesRequest{Roles: []string{account.RoleUser}})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (env *apiEnv) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

// beginGoogle starts a sign-in and returns the callback URL the provider
// would redirect to together with the browser's state cookie.
func (env *apiEnv) beginGoogle(t *testing.T) (string, *http.Cookie) {
	t.Helper()

	rec := env.get("/auth/google")
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	bound := cookieNamed(rec, stateCookie)
	require.NotNil(t, bound)
	require.Equal(t, state, bound.Value)
	require.True(t, bound.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, bound.SameSite)
	require.Positive(t, bound.MaxAge)
	return "/auth/google/callback?code=abc&state=" + url.QueryEscape(state), bound
}

func TestGoogleSignIn(t *testing.T) {
	env := newAPIEnv(t, nil)

	callback, bound := env.beginGoogle(t)
	rec := env.get(callback, bound)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[tokenResponse](t, rec)
	require.Equal(t, string(backDashboard.PhaseVerified), res.Phase)

	cleared := cookieNamed(rec, stateCookie)
	require.NotNil(t, cleared)
	require.Negative(t, cleared.MaxAge)

	cookie := cookieNamed(rec, middleware.CookieName)
	require.NotNil(t, cookie)
	require.Equal(t, res.Token, cookie.Value)
	require.True(t, cookie.HttpOnly)

	// The cookie alone authenticates.
	me := env.get("/users/me", cookie)
	require.Equal(t, http.StatusOK, me.Code)
	require.True(t, decode[profileResponse](t, me).ExternalLinked)

	// States are single use.
	rec = env.get(callback, bound)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoogleCallbackRequiresBrowserBoundState(t *testing.T) {
	env := newAPIEnv(t, nil)

	// Callback replayed in a browser that never started this sign-in.
	callback, bound := env.beginGoogle(t)
	rec := env.get(callback)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Nil(t, cookieNamed(rec, middleware.CookieName))

	// A state cookie from a different sign-in does not match either.
	_, other := env.beginGoogle(t)
	rec = env.get(callback, other)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Nil(t, cookieNamed(rec, middleware.CookieName))

	// The rejected attempts did not burn the state for its own browser.
	rec = env.get(callback, bound)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLogoutClearsCookie(t *testing.T) {
	env := newAPIEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, middleware.CookieName, cookies[0].Name)
	require.Negative(t, cookies[0].MaxAge)
}

func TestMetricsRoute(t *testing.T) {
	env := newAPIEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/auth/register", "", registerRequest{Email: anaEmail, Password: anaPassword})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "authd_register_success_total 1")
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{backDashboard.ErrAccountNotFound, http.StatusUnauthorized},
		{backDashboard.ErrInvalidCredentials, http.StatusUnauthorized},
		{backDashboard.ErrPendingReplay, http.StatusUnauthorized},
		{backDashboard.ErrForbidden, http.StatusForbidden},
		{backDashboard.ErrDuplicateAccount, http.StatusConflict},
		{backDashboard.ErrWrongAuthMethod, http.StatusConflict},
		{backDashboard.ErrLoginRateLimited, http.StatusTooManyRequests},
		{backDashboard.ErrNotEnrolled, http.StatusBadRequest},
		{backDashboard.ErrStoreUnavailable, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, Status(tc.err), tc.err.Error())
	}
}
