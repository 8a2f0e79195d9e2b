package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/pill-dispenser/internal/utils" // access token verification
)

// Context keys set by JWTAuth.
const (
    CtxUserID   = "user_id"
    CtxRole     = "role"
    CtxUsername = "username"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the caller's id (uint64), role and username into the request
// context.  The provided secret must match the one used when issuing
// tokens.  Handlers read them back via `c.Get("user_id")` and friends.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Authentication credentials were not provided."})
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

            claims, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Given token not valid for any token type"})
            }

            c.Set(CtxUserID, claims.UserID)
            c.Set(CtxRole, claims.Role)
            c.Set(CtxUsername, claims.Username)
            return next(c)
        }
    }
}
