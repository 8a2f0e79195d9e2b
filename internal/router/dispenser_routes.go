package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pill-dispenser/internal/handler"    // dispenser handlers
	"github.com/iliyamo/pill-dispenser/internal/middleware" // cache middlewares
)

// RegisterDispensers registers the dispenser, container and schedule
// endpoints.  All routes require a valid JWT; handlers scope every
// operation to the caller's own dispensers.
func RegisterDispensers(e *echo.Echo, h *handler.DispenserHandler, cache *middleware.ResponseCache, jwtSecret string) {
	inv := cache.InvalidateOnSuccess()

	// ---- Reads (cached per user) ----
	e.GET("/dispensers", h.List, authenticated(jwtSecret, anyRole, cache.Middleware())...)

	// ---- Writes (drop the caller's cached reads on success) ----
	e.POST("/register-dispenser", h.Register, authenticated(jwtSecret, anyRole, inv)...)
	e.POST("/update-dispenser-name", h.Rename, authenticated(jwtSecret, anyRole, inv)...)
	e.DELETE("/delete-dispenser/:name", h.Delete, authenticated(jwtSecret, anyRole, inv)...)

	// ---- Containers ----
	e.POST("/update-pill-name", h.UpdatePillName, authenticated(jwtSecret, anyRole, inv)...)
	e.PUT("/container-schedule", h.ReplaceSchedule, authenticated(jwtSecret, anyRole, inv)...)
}
