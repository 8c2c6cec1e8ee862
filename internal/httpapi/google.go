package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/orbitadevhub/backDashboard/external"
	"github.com/orbitadevhub/backDashboard/jwt"
)

// stateCookie binds the OAuth state to the browser that started sign-in.
const stateCookie = "oauth_state"

const googlePath = "/auth/google"

// GoogleRedirect sends the browser to the provider consent page.
func (a *API) GoogleRedirect(c echo.Context) error {
	redirect, state := a.opts.Google.Begin()
	a.setStateCookie(c, state, a.opts.Google.StateTTL())
	return c.Redirect(http.StatusFound, redirect)
}

// setStateCookie is Lax so it survives the top-level redirect back from the
// provider. A zero ttl clears it.
func (a *API) setStateCookie(c echo.Context, state string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl <= 0 {
		maxAge = -1
	}
	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     googlePath,
		Domain:   a.opts.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GoogleCallback finishes provider sign-in. A VERIFIED token is set as the
// access_token cookie and the browser goes to SuccessURL when configured.
// A PENDING token (MFA required for provider sign-in) is only returned in
// the body; the client completes it on /auth/2fa/verify.
func (a *API) GoogleCallback(c echo.Context) error {
	if c.QueryParam("error") != "" {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "provider sign-in cancelled"})
	}

	var bound string
	if ck, err := c.Cookie(stateCookie); err == nil {
		bound = ck.Value
	}
	a.setStateCookie(c, "", 0)

	ctx := requestContext(c)
	id, err := a.opts.Google.Complete(ctx, c.QueryParam("state"), bound, c.QueryParam("code"))
	switch {
	case errors.Is(err, external.ErrStateInvalid):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case err != nil:
		a.opts.Logger.Warn().Err(err).Msg("provider exchange failed")
		return c.JSON(http.StatusBadGateway, errorResponse{Error: external.ErrExchange.Error()})
	}

	res, err := a.svc.LoginExternal(ctx, id)
	if err != nil {
		return a.fail(c, err)
	}

	if res.Phase == jwt.PhaseVerified {
		a.setTokenCookie(c, res)
		if a.opts.SuccessURL != "" {
			return c.Redirect(http.StatusFound, a.opts.SuccessURL)
		}
	}
	return c.JSON(http.StatusOK, newTokenResponse(res))
}
