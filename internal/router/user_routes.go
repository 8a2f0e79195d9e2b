package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pill-dispenser/internal/handler"
	"github.com/iliyamo/pill-dispenser/internal/middleware"
	"github.com/iliyamo/pill-dispenser/internal/model"
)

// RegisterUsers registers the account directory endpoints.  Listing every
// account is staff-only; the single-user lookup is open to any
// authenticated caller and the service decides what they may see.
func RegisterUsers(e *echo.Echo, h *handler.UserHandler, cache *middleware.ResponseCache, jwtSecret string) {
	e.GET("/drivers", h.ListUsers, authenticated(jwtSecret, []string{model.RoleStaff}, cache.Middleware())...)
	e.POST("/driver", h.GetUser, authenticated(jwtSecret, anyRole)...)
}
