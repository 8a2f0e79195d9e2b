package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMemoryDriver(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "7")
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("DB_MIGRATE", "off")

	cfg := Load()
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Empty(t, cfg.DBHost, "DB_* are not read for the memory driver")
	assert.False(t, cfg.DBMigrate)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_KEY_STRATEGY", "user")

	cfg := LoadRateLimitConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 10*time.Second, cfg.TTL, "ttl is raised to five refill intervals")
	assert.Equal(t, "user", cfg.KeyStrategy)

	t.Setenv("RATE_LIMIT_KEY_STRATEGY", "")
	assert.Equal(t, "ip_route", LoadRateLimitConfig().KeyStrategy)

	auth := LoadAuthRateLimitConfig()
	assert.Equal(t, 10, auth.Capacity)
	assert.Equal(t, "ip_route", auth.KeyStrategy)
	assert.Equal(t, "rl:auth", auth.Prefix)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_TTL", "bogus")
	t.Setenv("CACHE_ENABLED", "no")

	cfg := LoadCacheConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Methods)
	assert.Equal(t, 30*time.Second, cfg.TTL)
	assert.Equal(t, 1<<20, cfg.MaxBodyBytes)
}

func TestLoadEventsConfig(t *testing.T) {
	cfg := LoadEventsConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "dispenser.events", cfg.Queue)
	assert.Equal(t, "logs", cfg.LogDir)

	t.Setenv("EVENTS_ENABLED", "true")
	t.Setenv("EVENTS_QUEUE", "audit")
	cfg = LoadEventsConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "audit", cfg.Queue)
}

func TestRedisConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("REDIS_ENABLED", "false")
	cfg := LoadRedisConfig()
	assert.Equal(t, "redis:6379", cfg.Addr)

	rdb, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, rdb)
}
