package handler // declare the package name; contains HTTP handlers

import (
    "context"  // context bounds the storage ping
    "net/http" // net/http provides status codes and response helpers
    "time"     // time sets the ping timeout

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// Health returns the health-check endpoint used by load balancers.  When
// db is non-nil the handler pings it and answers 503 if storage is
// unreachable; otherwise it always writes "ok".
func Health(db Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if db != nil {
            ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
            defer cancel()
            if err := db.PingContext(ctx); err != nil {
                return c.String(http.StatusServiceUnavailable, "storage unavailable")
            }
        }
        return c.String(http.StatusOK, "ok") // write "ok" with a 200 OK status; String writes plain text
    }
}
