package router // package router defines how HTTP routes are registered for the API

import (
	"errors"   // errors unwraps echo.HTTPError
	"log/slog" // slog is the request logger
	"net/http" // net/http provides status texts

	"github.com/labstack/echo/v4"                          // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware"        // panic recovery
	"github.com/prometheus/client_golang/prometheus"       // metrics registry
	"github.com/prometheus/client_golang/prometheus/promhttp" // /metrics exposition
	"github.com/redis/go-redis/v9"                         // shared rate limit state

	"github.com/iliyamo/pill-dispenser/internal/config"     // rate limit settings
	"github.com/iliyamo/pill-dispenser/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/pill-dispenser/internal/middleware" // import middleware for JWT authentication and role enforcement
	"github.com/iliyamo/pill-dispenser/internal/model"      // role names
	"github.com/iliyamo/pill-dispenser/internal/service"    // services behind the handlers
)

// Deps carries everything New needs to assemble the HTTP server.
type Deps struct {
	Auth       *service.AuthService
	Dispensers *service.DispenserService
	JWTSecret  string
	Logger     *slog.Logger
	Registry   *prometheus.Registry
	RateLimit  config.RateLimitConfig
	AuthLimit  config.RateLimitConfig // extra bucket on the credential endpoints
	Redis      *redis.Client
	Cache      *middleware.ResponseCache
	DB         handler.Pinger // nil when running on the memory store
}

// New builds the Echo instance with global middleware and every route.
func New(d Deps) *echo.Echo {
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	// Order matters: the logger and metrics see the final status written
	// by everything below them.
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(middleware.NewHTTPMetrics(d.Registry).Middleware())
	e.Use(middleware.NewTokenBucket(d.RateLimit, d.Redis))

	RegisterRoutes(e, d.DB, d.Registry)
	RegisterAuth(e, handler.NewAuthHandler(d.Auth), middleware.NewTokenBucket(d.AuthLimit, d.Redis), d.JWTSecret)
	RegisterUsers(e, handler.NewUserHandler(d.Auth), d.Cache, d.JWTSecret)
	RegisterDispensers(e, handler.NewDispenserHandler(d.Dispensers), d.Cache, d.JWTSecret)
	return e
}

// RegisterRoutes registers routes that do not require authentication:
// the health check and the Prometheus exposition.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, gatherer prometheus.Gatherer) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// RegisterAuth registers all authentication-related routes and applies the
// necessary middleware.  Register, login, logout and refresh need no
// session and share the stricter limit; /me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limit echo.MiddlewareFunc, jwtSecret string) {
	e.POST("/register", a.Register, limit)
	e.POST("/login", a.Login, limit)
	// Logout only needs the refresh token in the body, so it is not
	// behind JWTAuth.
	e.POST("/logout", a.Logout, limit)
	e.POST("/token/refresh", a.RefreshAccess, limit)

	e.GET("/me", a.Me, authenticated(jwtSecret, anyRole)...)
}

// anyRole admits every authenticated account.
var anyRole = []string{model.RoleUser, model.RoleStaff}

// authenticated returns the JWT and role checks for a protected route
// followed by any extra route middleware.  Routes are registered without
// a prefix group, since an Echo group with middleware also claims every
// unmatched path under its prefix.
func authenticated(jwtSecret string, roles []string, extra ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	chain := []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), middleware.RequireRole(roles...)}
	return append(chain, extra...)
}

// errorHandler renders framework errors (unknown route, wrong method,
// oversized body) in the same {"detail": ...} shape handlers use.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, msg := http.StatusInternalServerError, "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if s, ok := he.Message.(string); ok {
			msg = s
		} else {
			msg = http.StatusText(status)
		}
	} else {
		slog.Error("unhandled error", "path", c.Request().URL.Path, "err", err)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, echo.Map{"detail": msg})
}
