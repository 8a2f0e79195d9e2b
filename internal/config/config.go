package config // package config loads application configuration from environment variables

import (
    "log"      // log is used to report configuration errors and halt execution
    "os"       // os provides access to environment variables
    "strconv"  // strconv converts strings to other types
    "strings"  // strings normalises the storage driver name
)

// Storage drivers accepted in STORAGE_DRIVER.
const (
    DriverMySQL  = "mysql"
    DriverMemory = "memory"
)

// Config holds the settings every deployment must provide.  Optional
// subsystems (Redis, rate limits, cache, events) load their own structs.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    StorageDriver  string // "mysql" or "memory"
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    DBMigrate      bool   // apply embedded migrations on start
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time‑to‑live in minutes
    RefreshTTLDays int    // refresh token time‑to‑live in days
    BcryptCost     int    // bcrypt cost for password hashing
    LogLevel       string // debug, info, warn or error
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The DB_* variables
// are only required when the mysql storage driver is selected.
func Load() Config {
    cfg := Config{
        Env:            must("APP_ENV"),                                   // environment (dev/test/prod)
        Port:           must("APP_PORT"),                                  // port to bind the HTTP server
        StorageDriver:  strings.ToLower(envStr("STORAGE_DRIVER", DriverMySQL)), // persistence backend
        DBPass:         os.Getenv("DB_PASS"),                              // database password (empty allowed)
        DBMigrate:      envBool("DB_MIGRATE", true),                       // run goose on start
        JWTSecret:      must("JWT_SECRET"),                                // secret used for signing JWTs
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),                   // TTL for access tokens in minutes
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),                 // TTL for refresh tokens in days
        BcryptCost:     mustInt("BCRYPT_COST"),                            // bcrypt cost factor
        LogLevel:       envStr("LOG_LEVEL", "info"),                       // slog level name
    }
    switch cfg.StorageDriver {
    case DriverMySQL:
        cfg.DBUser = must("DB_USER") // database user
        cfg.DBHost = must("DB_HOST") // database host
        cfg.DBPort = must("DB_PORT") // database port
        cfg.DBName = must("DB_NAME") // database name
    case DriverMemory:
    default:
        log.Fatalf("unknown STORAGE_DRIVER: %q", cfg.StorageDriver)
    }
    return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
