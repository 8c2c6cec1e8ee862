package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	backDashboard "github.com/orbitadevhub/backDashboard"
	"github.com/orbitadevhub/backDashboard/account"
	"github.com/orbitadevhub/backDashboard/middleware"
)

type profileResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName,omitempty"`
	LastName       string    `json:"lastName,omitempty"`
	Roles          []string  `json:"roles"`
	TOTPEnabled    bool      `json:"totpEnabled"`
	ExternalLinked bool      `json:"externalLinked"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newProfileResponse(a account.Account) profileResponse {
	return profileResponse{
		ID:             a.ID,
		Email:          a.Email,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		Roles:          a.Roles,
		TOTPEnabled:    a.TOTPEnabled,
		ExternalLinked: a.ExternalID != "",
		CreatedAt:      a.CreatedAt,
	}
}

type rolesRequest struct {
	Roles []string `json:"roles"`
}

// Me returns the caller's account.
func (a *API) Me(c echo.Context) error {
	claims, ok := middleware.ClaimsFromContext(c.Request().Context())
	if !ok {
		return a.fail(c, backDashboard.ErrUnauthenticated)
	}

	acct, err := a.svc.Profile(requestContext(c), claims.AccountID())
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, newProfileResponse(acct))
}

// UpdateRoles replaces the role set of another account. Tokens already
// issued to that account keep their old roles until they expire.
func (a *API) UpdateRoles(c echo.Context) error {
	var req rolesRequest
	if err := c.Bind(&req); err != nil {
		return a.fail(c, backDashboard.ErrInvalidRequest)
	}

	acct, err := a.svc.UpdateRoles(requestContext(c), c.Param("id"), req.Roles)
	if errors.Is(err, backDashboard.ErrAccountNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "account not found"})
	}
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, newProfileResponse(acct))
}
