package middleware

// identity.go holds helpers shared across middleware files for reading the
// caller identity that JWTAuth stored in the Echo context.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// CallerID returns the authenticated user's id, or false when the request
// did not pass through JWTAuth.
func CallerID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(CtxUserID).(uint64)
    return id, ok && id != 0
}

// userKey renders the caller id for cache and rate-limit keys.  It
// returns "guest" when no user is authenticated.
func userKey(c echo.Context) string {
    if id, ok := CallerID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "guest"
}
