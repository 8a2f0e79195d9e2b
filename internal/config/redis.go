package config

import (
    "context"
    "crypto/tls"
    "fmt"
    "os"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server shared by the rate limiter and the
// response cache.
type RedisConfig struct {
    Enabled  bool
    Addr     string
    Password string
    DB       int
    TLS      bool
}

// LoadRedisConfig reads the REDIS_* variables.  REDIS_HOST and REDIS_PORT
// together take precedence over REDIS_ADDR.
func LoadRedisConfig() RedisConfig {
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    return RedisConfig{
        Enabled:  envBool("REDIS_ENABLED", true),
        Addr:     addr,
        Password: os.Getenv("REDIS_PASSWORD"),
        DB:       envInt("REDIS_DB", 0),
        TLS:      envBool("REDIS_TLS", false),
    }
}

// NewRedisClient connects to Redis and pings it.  It returns (nil, nil)
// when Redis is disabled and an error when the server is unreachable;
// either way callers run without shared rate limits and without caching.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
    if !cfg.Enabled {
        return nil, nil
    }
    opts := &redis.Options{
        Addr:     cfg.Addr,
        Password: cfg.Password,
        DB:       cfg.DB,
    }
    if cfg.TLS {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(opts)

    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
    }
    return client, nil
}
