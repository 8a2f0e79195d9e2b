package middleware

import (
    "context"
    "fmt"
    "log/slog"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "golang.org/x/time/rate"

    "github.com/iliyamo/pill-dispenser/internal/config"
)

// takeToken refills the bucket stored at KEYS[1] by whole intervals and
// tries to take one token.  Returns {allowed, remaining, retry_after_ms}.
var takeToken = redis.NewScript(`
local now, cap, refill, every, ttl =
    tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local b = redis.call('HMGET', KEYS[1], 'tokens', 'stamp')
local tokens, stamp = tonumber(b[1]), tonumber(b[2])
if not tokens or not stamp then
    tokens, stamp = cap, now
end
local n = math.floor(math.max(0, now - stamp) / every)
if n > 0 then
    tokens = math.min(cap, tokens + n * refill)
    stamp = stamp + n * every
end
local ok, wait = 0, 0
if tokens >= 1 then
    ok, tokens = 1, tokens - 1
else
    wait = math.max(0, every - (now - stamp))
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'stamp', stamp)
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, tokens, wait}
`)

// decision is the outcome of one rate-limit check.
type decision struct {
    allowed   bool
    remaining int64
    retry     time.Duration
}

type limiter interface {
    take(ctx context.Context, key string, now time.Time) (decision, error)
}

// NewTokenBucket returns a per-key token bucket middleware.  With a Redis
// client the bucket state is shared across instances; without one every
// key gets an in-process golang.org/x/time/rate limiter.  Redis errors let
// the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled {
        return passthrough
    }
    var lim limiter
    if rdb != nil {
        lim = &redisLimiter{rdb: rdb, cfg: cfg}
    } else {
        lim = newLocalLimiter(cfg)
    }
    limit := strconv.Itoa(cfg.Capacity)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            d, err := lim.take(c.Request().Context(), key, time.Now())
            if err != nil {
                if cfg.Debug {
                    slog.Warn("ratelimit: redis error", "key", key, "err", err)
                }
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", limit)
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if d.allowed {
                return next(c)
            }

            secs := int((d.retry + time.Second - 1) / time.Second)
            h.Set("Retry-After", strconv.Itoa(secs))
            if cfg.Debug {
                slog.Info("ratelimit: block", "key", key, "retry", d.retry)
            }
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "detail":      "Request was throttled.",
                "retry_after": secs,
            })
        }
    }
}

type redisLimiter struct {
    rdb *redis.Client
    cfg config.RateLimitConfig
}

func (l *redisLimiter) take(ctx context.Context, key string, now time.Time) (decision, error) {
    res, err := takeToken.Run(ctx, l.rdb, []string{key},
        now.UnixMilli(),
        l.cfg.Capacity,
        l.cfg.RefillTokens,
        l.cfg.RefillInterval.Milliseconds(),
        int64(l.cfg.TTL/time.Second),
    ).Int64Slice()
    if err != nil {
        return decision{}, err
    }
    if len(res) != 3 {
        return decision{}, fmt.Errorf("ratelimit: unexpected script result %v", res)
    }
    return decision{
        allowed:   res[0] == 1,
        remaining: res[1],
        retry:     time.Duration(res[2]) * time.Millisecond,
    }, nil
}

// localLimiter keeps one rate.Limiter per key and forgets keys idle for
// longer than the configured TTL.
type localLimiter struct {
    mu        sync.Mutex
    every     rate.Limit
    burst     int
    ttl       time.Duration
    buckets   map[string]*localBucket
    lastSweep time.Time
}

type localBucket struct {
    lim  *rate.Limiter
    seen time.Time
}

func newLocalLimiter(cfg config.RateLimitConfig) *localLimiter {
    return &localLimiter{
        every:   rate.Every(cfg.RefillInterval / time.Duration(cfg.RefillTokens)),
        burst:   cfg.Capacity,
        ttl:     cfg.TTL,
        buckets: make(map[string]*localBucket),
    }
}

func (l *localLimiter) take(_ context.Context, key string, now time.Time) (decision, error) {
    l.mu.Lock()
    defer l.mu.Unlock()
    if now.Sub(l.lastSweep) > l.ttl {
        for k, b := range l.buckets {
            if now.Sub(b.seen) > l.ttl {
                delete(l.buckets, k)
            }
        }
        l.lastSweep = now
    }
    b, ok := l.buckets[key]
    if !ok {
        b = &localBucket{lim: rate.NewLimiter(l.every, l.burst)}
        l.buckets[key] = b
    }
    b.seen = now

    r := b.lim.ReserveN(now, 1)
    if delay := r.DelayFrom(now); delay > 0 {
        r.CancelAt(now)
        return decision{retry: delay}, nil
    }
    return decision{allowed: true, remaining: int64(b.lim.TokensAt(now))}, nil
}

// buildRateKey joins the facets named by cfg.KeyStrategy, e.g. "ip_route"
// gives "<prefix>:ip:<addr>:route:<method path>".  An empty or unknown
// strategy keys on ip, user and route together.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    facets := map[string]func() string{
        "ip": func() string {
            if ip := c.RealIP(); ip != "" {
                return ip
            }
            return "unknown"
        },
        "user":  func() string { return userKey(c) },
        "route": func() string { return c.Request().Method + " " + c.Path() },
    }

    parts := []string{cfg.Prefix}
    for _, name := range strings.Split(strings.ToLower(cfg.KeyStrategy), "_") {
        if f, ok := facets[name]; ok {
            parts = append(parts, name, f())
        }
    }
    if len(parts) == 1 {
        for _, name := range []string{"ip", "user", "route"} {
            parts = append(parts, name, facets[name]())
        }
    }
    return strings.Join(parts, ":")
}
