package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newGoogleServer(t *testing.T, userinfo string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			_ = r.ParseForm()
			if r.PostForm.Get("code") != "good-code" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer at-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(userinfo))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, srv *httptest.Server) *GoogleProvider {
	t.Helper()
	p, err := NewGoogleProvider(GoogleConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:3000/auth/google/callback",
		Endpoint: &oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		UserInfoURL: srv.URL + "/userinfo",
	})
	require.NoError(t, err)
	return p
}

const anaUserInfo = `{
	"sub": "10769150350006150715113082367",
	"email": "Ana@Example.com",
	"email_verified": true,
	"given_name": "Ana",
	"family_name": "Pérez"
}`

func TestGoogleExchange(t *testing.T) {
	srv := newGoogleServer(t, anaUserInfo, http.StatusOK)
	p := newTestProvider(t, srv)

	id, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "google", id.Provider)
	assert.Equal(t, "google:10769150350006150715113082367", id.ExternalID())
	assert.Equal(t, "Ana@Example.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "Pérez", id.LastName)
}

func TestGoogleExchangeBadCode(t *testing.T) {
	srv := newGoogleServer(t, anaUserInfo, http.StatusOK)
	p := newTestProvider(t, srv)

	_, err := p.Exchange(context.Background(), "bad-code")
	require.ErrorIs(t, err, ErrExchange)
}

func TestGoogleExchangeUserInfoError(t *testing.T) {
	srv := newGoogleServer(t, `{"error":"boom"}`, http.StatusInternalServerError)
	p := newTestProvider(t, srv)

	_, err := p.Exchange(context.Background(), "good-code")
	require.ErrorIs(t, err, ErrExchange)
}

func TestGoogleExchangeIncompleteIdentity(t *testing.T) {
	srv := newGoogleServer(t, `{"sub":"1"}`, http.StatusOK)
	p := newTestProvider(t, srv)

	_, err := p.Exchange(context.Background(), "good-code")
	require.ErrorIs(t, err, ErrIncompleteIdentity)
}

func TestGoogleAuthCodeURL(t *testing.T) {
	srv := newGoogleServer(t, anaUserInfo, http.StatusOK)
	p := newTestProvider(t, srv)

	u, err := url.Parse(p.AuthCodeURL("state-1"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
}

func TestNewGoogleProviderRequiresCredentials(t *testing.T) {
	_, err := NewGoogleProvider(GoogleConfig{ClientID: "c"})
	require.Error(t, err)
}

func TestStateCacheSingleUse(t *testing.T) {
	s := NewStateCache(time.Minute)
	defer s.Stop()

	state := s.Issue()
	require.Equal(t, 1, s.Len())
	require.True(t, s.Consume(state))
	require.False(t, s.Consume(state))
	require.False(t, s.Consume("never-issued"))
	require.False(t, s.Consume(""))
}

func TestStateCacheExpires(t *testing.T) {
	s := NewStateCache(20 * time.Millisecond)
	defer s.Stop()

	state := s.Issue()
	time.Sleep(50 * time.Millisecond)
	require.False(t, s.Consume(state))
}

func TestServiceRoundTrip(t *testing.T) {
	srv := newGoogleServer(t, anaUserInfo, http.StatusOK)
	svc := NewService(newTestProvider(t, srv), time.Minute)
	defer svc.Close()

	redirect, state := svc.Begin()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	require.Equal(t, state, u.Query().Get("state"))

	_, err = svc.Complete(context.Background(), "forged", "forged", "good-code")
	require.ErrorIs(t, err, ErrStateInvalid)

	// A state replayed from another browser carries no binding.
	_, err = svc.Complete(context.Background(), state, "", "good-code")
	require.ErrorIs(t, err, ErrStateInvalid)
	_, err = svc.Complete(context.Background(), state, "other", "good-code")
	require.ErrorIs(t, err, ErrStateInvalid)

	id, err := svc.Complete(context.Background(), state, state, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "google:10769150350006150715113082367", id.ExternalID())

	_, err = svc.Complete(context.Background(), state, state, "good-code")
	require.ErrorIs(t, err, ErrStateInvalid)
	require.Equal(t, time.Minute, svc.StateTTL())
}

func TestIdentityValidate(t *testing.T) {
	require.NoError(t, Identity{Provider: "google", Subject: "1", Email: "a@b.c"}.Validate())
	require.ErrorIs(t, Identity{Provider: "google", Email: "a@b.c"}.Validate(), ErrIncompleteIdentity)
	require.ErrorIs(t, Identity{Provider: "google", Subject: "1"}.Validate(), ErrIncompleteIdentity)
}
