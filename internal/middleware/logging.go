package middleware

import (
    "log/slog"
    "time"

    "github.com/labstack/echo/v4"
)

// RequestLogger logs one structured line per request once the handler
// chain has finished.  Server errors log at Error, client errors at Warn.
func RequestLogger(log *slog.Logger) echo.MiddlewareFunc {
    if log == nil {
        log = slog.Default()
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                // let the HTTP error handler write the response first
                c.Error(err)
            }
            status := c.Response().Status
            attrs := []any{
                "method", c.Request().Method,
                "route", routeOf(c),
                "status", status,
                "user_id", userKey(c),
                "duration_ms", time.Since(start).Milliseconds(),
            }
            switch {
            case status >= 500:
                if err != nil {
                    attrs = append(attrs, "err", err)
                }
                log.Error("request", attrs...)
            case status >= 400:
                log.Warn("request", attrs...)
            default:
                log.Info("request", attrs...)
            }
            return nil
        }
    }
}

// routeOf returns the registered route pattern, or "unmatched" for 404s
// so unknown paths cannot blow up label cardinality.
func routeOf(c echo.Context) string {
    if p := c.Path(); p != "" {
        return p
    }
    return "unmatched"
}
