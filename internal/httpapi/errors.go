package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	backDashboard "github.com/orbitadevhub/backDashboard"
)

type errorResponse struct {
	Error string `json:"error"`
}

// Status maps an engine error to the HTTP status of its public form.
func Status(err error) int {
	pub := backDashboard.PublicError(err)
	switch {
	case pub == nil:
		return http.StatusOK
	case errors.Is(pub, backDashboard.ErrInvalidCredentials),
		errors.Is(pub, backDashboard.ErrUnauthenticated),
		errors.Is(pub, backDashboard.ErrWrongAuthPhase),
		errors.Is(pub, backDashboard.ErrInvalidCode):
		return http.StatusUnauthorized
	case errors.Is(pub, backDashboard.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(pub, backDashboard.ErrDuplicateAccount),
		errors.Is(pub, backDashboard.ErrExternalIdentityConflict),
		errors.Is(pub, backDashboard.ErrWrongAuthMethod):
		return http.StatusConflict
	case errors.Is(pub, backDashboard.ErrLoginRateLimited),
		errors.Is(pub, backDashboard.ErrTOTPRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(pub, backDashboard.ErrNotEnrolled),
		errors.Is(pub, backDashboard.ErrPasswordPolicy),
		errors.Is(pub, backDashboard.ErrRoleInvalid),
		errors.Is(pub, backDashboard.ErrExternalIdentityInvalid),
		errors.Is(pub, backDashboard.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the public form of err. Policy violations keep their detail
// so the form can tell the user what to fix.
func (a *API) fail(c echo.Context, err error) error {
	status := Status(err)
	msg := backDashboard.PublicError(err).Error()
	if errors.Is(err, backDashboard.ErrPasswordPolicy) {
		msg = err.Error()
	}
	if status >= http.StatusInternalServerError {
		a.opts.Logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.JSON(status, errorResponse{Error: msg})
}
