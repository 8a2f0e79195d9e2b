package middleware

import (
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics holds the request counters and latency histogram.
type HTTPMetrics struct {
    requests *prometheus.CounterVec
    duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP collectors with reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
    m := &HTTPMetrics{
        requests: prometheus.NewCounterVec(prometheus.CounterOpts{
            Name: "http_requests_total",
            Help: "HTTP requests by method, route and status.",
        }, []string{"method", "route", "status"}),
        duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
            Name:    "http_request_duration_seconds",
            Help:    "HTTP request latency by method and route.",
            Buckets: prometheus.DefBuckets,
        }, []string{"method", "route"}),
    }
    reg.MustRegister(m.requests, m.duration)
    return m
}

// Middleware records every request.  Handler errors are written here so
// the recorded status is the one the client receives.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }
            route := routeOf(c)
            method := c.Request().Method
            m.requests.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
            m.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
            return nil
        }
    }
}
