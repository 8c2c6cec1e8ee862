package httpapi

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	backDashboard "github.com/orbitadevhub/backDashboard"
	"github.com/orbitadevhub/backDashboard/middleware"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type tokenResponse struct {
	Token       string    `json:"token"`
	Phase       string    `json:"phase"`
	ExpiresAt   time.Time `json:"expiresAt"`
	MFARequired bool      `json:"mfaRequired"`
}

type enrollmentResponse struct {
	Secret      string `json:"secret"`
	OTPAuthURL  string `json:"otpauthUrl"`
	QRCode      string `json:"qrCode"`
	EmailQueued bool   `json:"emailQueued"`
}

type registerResponse struct {
	Account profileResponse     `json:"account"`
	TOTP    *enrollmentResponse `json:"totp,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func newTokenResponse(res *backDashboard.LoginResult) tokenResponse {
	return tokenResponse{
		Token:       res.Token,
		Phase:       string(res.Phase),
		ExpiresAt:   res.ExpiresAt,
		MFARequired: res.TOTPRequired,
	}
}

func newEnrollmentResponse(enr *backDashboard.TOTPEnrollment) *enrollmentResponse {
	if enr == nil {
		return nil
	}
	return &enrollmentResponse{
		Secret:      enr.Secret,
		OTPAuthURL:  enr.URI,
		QRCode:      "data:image/png;base64," + base64.StdEncoding.EncodeToString(enr.QRCode),
		EmailQueued: enr.Queued,
	}
}

// Register creates a password account. The TOTP secret is returned when the
// engine enrolls on registration; it is also mailed to the user.
func (a *API) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return a.fail(c, backDashboard.ErrInvalidRequest)
	}

	reg, err := a.svc.Register(requestContext(c), backDashboard.RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(http.StatusCreated, registerResponse{
		Account: newProfileResponse(reg.Account),
		TOTP:    newEnrollmentResponse(reg.Enrollment),
	})
}

// Login checks the password. Accounts with TOTP enabled get a PENDING token
// with mfaRequired set; everyone else gets a VERIFIED token.
func (a *API) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return a.fail(c, backDashboard.ErrInvalidRequest)
	}

	res, err := a.svc.Login(requestContext(c), req.Email, req.Password)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, newTokenResponse(res))
}

// VerifyTOTP trades the PENDING token in the request and a code for a
// VERIFIED token.
func (a *API) VerifyTOTP(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return a.fail(c, backDashboard.ErrInvalidRequest)
	}

	token, _ := middleware.TokenFromRequest(c.Request())
	res, err := a.svc.CompleteLogin(requestContext(c), token, req.Code)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, newTokenResponse(res))
}

// EnrollTOTP issues a new secret for the caller. It stays disabled until
// ConfirmTOTP.
func (a *API) EnrollTOTP(c echo.Context) error {
	claims, ok := middleware.ClaimsFromContext(c.Request().Context())
	if !ok {
		return a.fail(c, backDashboard.ErrUnauthenticated)
	}

	enr, err := a.svc.EnrollTOTP(requestContext(c), claims.AccountID())
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, newEnrollmentResponse(enr))
}

// ConfirmTOTP enables TOTP once the caller proves they hold the secret.
func (a *API) ConfirmTOTP(c echo.Context) error {
	claims, ok := middleware.ClaimsFromContext(c.Request().Context())
	if !ok {
		return a.fail(c, backDashboard.ErrUnauthenticated)
	}
	var req codeRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return a.fail(c, backDashboard.ErrInvalidRequest)
	}

	if err := a.svc.ConfirmTOTP(requestContext(c), claims.AccountID(), req.Code); err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "two-factor authentication enabled"})
}

// Logout clears the browser cookie. Bearer tokens expire on their own.
func (a *API) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   a.opts.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	return c.JSON(http.StatusOK, messageResponse{Message: "signed out"})
}

func (a *API) setTokenCookie(c echo.Context, res *backDashboard.LoginResult) {
	maxAge := int(time.Until(res.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetCookie(&http.Cookie{
		Name:     middleware.CookieName,
		Value:    res.Token,
		Path:     "/",
		Domain:   a.opts.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}
