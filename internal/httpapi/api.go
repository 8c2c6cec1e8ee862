// Package httpapi exposes the engine over HTTP with echo.
//
// Routes:
//
//	POST  /auth/register
//	POST  /auth/login
//	POST  /auth/2fa/verify      PENDING token
//	POST  /auth/2fa/enroll      VERIFIED token
//	POST  /auth/2fa/confirm     VERIFIED token
//	POST  /auth/logout
//	GET   /auth/google          when a provider is configured
//	GET   /auth/google/callback
//	GET   /users/me             USER or ADMIN
//	PATCH /users/:id/roles      ADMIN
//	GET   /metrics              when a handler is configured
package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	backDashboard "github.com/orbitadevhub/backDashboard"
	"github.com/orbitadevhub/backDashboard/account"
	"github.com/orbitadevhub/backDashboard/external"
	"github.com/orbitadevhub/backDashboard/guard"
	"github.com/orbitadevhub/backDashboard/middleware"
	"github.com/rs/zerolog"
)

// Service is the engine surface the API calls. *backDashboard.Engine
// satisfies it.
type Service interface {
	middleware.Authorizer
	Register(ctx context.Context, req backDashboard.RegisterRequest) (*backDashboard.Registration, error)
	Login(ctx context.Context, email, password string) (*backDashboard.LoginResult, error)
	CompleteLogin(ctx context.Context, pendingToken, code string) (*backDashboard.LoginResult, error)
	EnrollTOTP(ctx context.Context, accountID string) (*backDashboard.TOTPEnrollment, error)
	ConfirmTOTP(ctx context.Context, accountID, code string) error
	Profile(ctx context.Context, accountID string) (account.Account, error)
	UpdateRoles(ctx context.Context, accountID string, roles []string) (account.Account, error)
	LoginExternal(ctx context.Context, id external.Identity) (*backDashboard.LoginResult, error)
}

// Options configures the optional parts of the API.
type Options struct {
	// Google enables the provider redirect and callback routes.
	Google *external.Service
	// SuccessURL receives the browser after a VERIFIED provider sign-in.
	// Empty answers the callback with JSON.
	SuccessURL string
	// Metrics is mounted on GET /metrics when set.
	Metrics      http.Handler
	CookieSecure bool
	CookieDomain string
	Logger       zerolog.Logger
}

// API holds the handlers.
type API struct {
	svc  Service
	opts Options
}

func New(svc Service, opts Options) *API {
	return &API{svc: svc, opts: opts}
}

// NewServer returns an echo instance with recovery, request logging and
// every route registered.
func NewServer(svc Service, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	logger := opts.Logger
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			logger.Info().
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	}))

	New(svc, opts).RegisterRoutes(e)
	return e
}

// RegisterRoutes registers the routes on e.
func (a *API) RegisterRoutes(e *echo.Echo) {
	auth := e.Group("/auth")
	auth.POST("/register", a.Register)
	auth.POST("/login", a.Login)
	auth.POST("/logout", a.Logout)
	auth.POST("/2fa/verify", a.VerifyTOTP, a.protect(backDashboard.OpVerifyLoginTOTP))
	auth.POST("/2fa/enroll", a.EnrollTOTP, a.protect(backDashboard.OpEnrollTOTP))
	auth.POST("/2fa/confirm", a.ConfirmTOTP, a.protect(backDashboard.OpConfirmTOTP))

	if a.opts.Google != nil {
		auth.GET("/google", a.GoogleRedirect)
		auth.GET("/google/callback", a.GoogleCallback)
	}

	users := e.Group("/users")
	users.GET("/me", a.Me, a.protect(backDashboard.OpProfile))
	users.PATCH("/:id/roles", a.UpdateRoles, a.protect(backDashboard.OpUpdateRoles))

	if a.opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(a.opts.Metrics))
	}
}

func (a *API) protect(op guard.Operation) echo.MiddlewareFunc {
	return echo.WrapMiddleware(middleware.Protect(a.svc, op))
}

// requestContext carries the client address into the engine for throttling
// and audit.
func requestContext(c echo.Context) context.Context {
	return backDashboard.WithClientIP(c.Request().Context(), c.RealIP())
}
