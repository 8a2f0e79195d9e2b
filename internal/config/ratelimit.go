package config

import "time"

// RateLimitConfig configures one token bucket.  The general bucket guards
// every route; a second, smaller one guards the credential endpoints
// (register, login, logout, token refresh) against guessing.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int           // bucket size, i.e. the allowed burst
    RefillTokens   int           // tokens added per RefillInterval
    RefillInterval time.Duration
    TTL            time.Duration // idle buckets are dropped after TTL
    KeyStrategy    string        // ip, user, route or an "_" joined combination
    Prefix         string        // Redis key namespace
    Debug          bool          // log blocks and expose X-RateLimit-Key
}

// LoadRateLimitConfig reads the RATE_LIMIT_* variables for the general bucket.
// That bucket runs before authentication, so the caller is always "guest"
// to it and the default key is client IP plus route.
func LoadRateLimitConfig() RateLimitConfig {
    return RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }.normalized()
}

// LoadAuthRateLimitConfig reads the AUTH_RATE_LIMIT_* variables.  Callers
// are anonymous on these routes, so buckets are keyed by client IP and
// route.
func LoadAuthRateLimitConfig() RateLimitConfig {
    return RateLimitConfig{
        Enabled:        envBool("AUTH_RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("AUTH_RATE_LIMIT_CAPACITY", 10),
        RefillTokens:   1,
        RefillInterval: envDur("AUTH_RATE_LIMIT_REFILL_INTERVAL", 6*time.Second),
        TTL:            envDur("AUTH_RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    "ip_route",
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl") + ":auth",
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }.normalized()
}

// normalized clamps values the limiter cannot work with.  The TTL must
// outlive several refill intervals or buckets would reset while in use.
func (c RateLimitConfig) normalized() RateLimitConfig {
    if c.Capacity < 1 {
        c.Capacity = 1
    }
    if c.RefillTokens < 1 {
        c.RefillTokens = 1
    }
    if c.RefillInterval <= 0 {
        c.RefillInterval = time.Second
    }
    if floor := 5 * c.RefillInterval; c.TTL < floor {
        c.TTL = floor
    }
    return c
}
