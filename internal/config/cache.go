package config

import "time"

// CacheConfig configures the per-user response cache in front of the list
// endpoints (GET /dispensers and GET /drivers).  Caching is off when
// Enabled is false or no Redis client is available.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool // upper-cased HTTP methods eligible for caching
    TTL          time.Duration
    KeyStrategy  string // route, route_query, method_route or method_route_query
    Prefix       string // Redis key namespace
    MaxBodyBytes int    // larger responses are served but not stored
}

// LoadCacheConfig reads the CACHE_* variables.
func LoadCacheConfig() CacheConfig {
    cfg := CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      envSet("CACHE_METHODS", "GET"),
        TTL:          envDur("CACHE_TTL", 30*time.Second),
        KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
        Prefix:       envStr("CACHE_PREFIX", "cache"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
    }
    if cfg.TTL <= 0 {
        cfg.TTL = 30 * time.Second
    }
    return cfg
}
