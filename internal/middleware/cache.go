package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/hex"
    "encoding/json"
    "log/slog"
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/pill-dispenser/internal/config"
)

// cachedResponse is what gets stored in Redis for one cache key.
type cachedResponse struct {
    Status int         `json:"s"`
    Header http.Header `json:"h"`
    Body   []byte      `json:"b"`
}

func encodeEntry(e cachedResponse) ([]byte, error) { return json.Marshal(e) }

func decodeEntry(bs []byte) (cachedResponse, bool) {
    var e cachedResponse
    if err := json.Unmarshal(bs, &e); err != nil || e.Status == 0 {
        return cachedResponse{}, false
    }
    if e.Header == nil {
        e.Header = make(http.Header)
    }
    return e, true
}

// bodyRecorder tees the response into a buffer of at most limit bytes
// (limit <= 0 means unbounded).  overflow is set once the body outgrows it.
type bodyRecorder struct {
    http.ResponseWriter
    status   int
    limit    int
    buf      bytes.Buffer
    overflow bool
}

func (r *bodyRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
    if !r.overflow {
        if r.limit > 0 && r.buf.Len()+len(b) > r.limit {
            r.overflow = true
            r.buf.Reset()
        } else {
            r.buf.Write(b)
        }
    }
    return r.ResponseWriter.Write(b)
}

// userPrefix is the key namespace of one caller; InvalidateUser scans it.
func userPrefix(prefix, user string) string {
    return prefix + ":u:" + user + ":"
}

// cacheKeyFrom hashes the request facets selected by cfg.KeyStrategy under
// the caller's namespace.  Query parameters are re-encoded so their order
// does not matter.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    strategy := strings.ToLower(cfg.KeyStrategy)
    if strategy == "" {
        strategy = "route_query"
    }

    var sb strings.Builder
    if strings.HasPrefix(strategy, "method_") {
        sb.WriteString(r.Method)
        sb.WriteByte(' ')
    }
    sb.WriteString(c.Path())
    if strings.HasSuffix(strategy, "_query") {
        sb.WriteByte('?')
        sb.WriteString(r.URL.Query().Encode())
    }

    sum := sha1.Sum([]byte(sb.String()))
    return userPrefix(cfg.Prefix, userKey(c)) + hex.EncodeToString(sum[:])
}

// ResponseCache caches successful GET responses in Redis per user and
// drops a user's entries after that user changes data.  A nil Redis client
// or a disabled config turns both operations into no-ops.
type ResponseCache struct {
    cfg config.CacheConfig
    rdb *redis.Client
}

// NewRedisCache builds a ResponseCache.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) *ResponseCache {
    return &ResponseCache{cfg: cfg, rdb: rdb}
}

func (rc *ResponseCache) active() bool { return rc != nil && rc.cfg.Enabled && rc.rdb != nil }

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// Middleware serves a stored copy when one exists (X-Cache: HIT) and
// otherwise records the 200 response of the handler (X-Cache: MISS).
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
    if !rc.active() {
        return passthrough
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
                return next(c)
            }
            key := cacheKeyFrom(rc.cfg, c)
            if rc.serve(c, key) {
                return nil
            }

            rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: rc.cfg.MaxBodyBytes}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if rec.status == http.StatusOK && !rec.overflow {
                rc.store(key, c.Response().Header(), rec)
            }
            return nil
        }
    }
}

func (rc *ResponseCache) serve(c echo.Context, key string) bool {
    bs, err := rc.rdb.Get(c.Request().Context(), key).Bytes()
    if err != nil {
        return false
    }
    entry, ok := decodeEntry(bs)
    if !ok {
        return false
    }
    h := c.Response().Header()
    for k, vals := range entry.Header {
        for _, v := range vals {
            h.Add(k, v)
        }
    }
    h.Set("X-Cache", "HIT")
    c.Response().WriteHeader(entry.Status)
    _, _ = c.Response().Write(entry.Body)
    return true
}

func (rc *ResponseCache) store(key string, h http.Header, rec *bodyRecorder) {
    hdr := h.Clone()
    hdr.Del("X-Cache")
    hdr.Del("Content-Length")
    bs, err := encodeEntry(cachedResponse{Status: rec.status, Header: hdr, Body: rec.buf.Bytes()})
    if err != nil {
        return
    }
    if err := rc.rdb.Set(context.Background(), key, bs, rc.cfg.TTL).Err(); err != nil {
        slog.Debug("cache store failed", "key", key, "err", err)
    }
}

// InvalidateUser deletes every cached response stored for userID.
func (rc *ResponseCache) InvalidateUser(ctx context.Context, userID uint64) error {
    if !rc.active() {
        return nil
    }
    pattern := userPrefix(rc.cfg.Prefix, strconv.FormatUint(userID, 10)) + "*"
    iter := rc.rdb.Scan(ctx, 0, pattern, 100).Iterator()
    var keys []string
    for iter.Next(ctx) {
        keys = append(keys, iter.Val())
    }
    if err := iter.Err(); err != nil {
        return err
    }
    if len(keys) == 0 {
        return nil
    }
    return rc.rdb.Del(ctx, keys...).Err()
}

// InvalidateOnSuccess drops the caller's cached responses after a
// mutating request completes with a 2xx status.
func (rc *ResponseCache) InvalidateOnSuccess() echo.MiddlewareFunc {
    if !rc.active() {
        return passthrough
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            err := next(c)
            if err != nil || c.Request().Method == http.MethodGet {
                return err
            }
            if status := c.Response().Status; status < 200 || status >= 300 {
                return nil
            }
            if id, ok := CallerID(c); ok {
                if ierr := rc.InvalidateUser(context.Background(), id); ierr != nil {
                    slog.Warn("cache invalidation failed", "user_id", id, "err", ierr)
                }
            }
            return nil
        }
    }
}
