package config

import (
    "os"       // os reads the environment
    "strconv"  // strconv parses numbers and booleans
    "strings"  // strings splits list values
    "time"     // time parses durations
)

// The env* helpers read optional variables.  An unset, empty or
// unparsable value yields the default.

func envStr(key, def string) string {
    if v := strings.TrimSpace(os.Getenv(key)); v != "" {
        return v
    }
    return def
}

func envBool(key string, def bool) bool {
    switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
    case "1", "true", "yes", "on":
        return true
    case "0", "false", "no", "off":
        return false
    }
    return def
}

func envInt(key string, def int) int {
    if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
        return n
    }
    return def
}

func envDur(key string, def time.Duration) time.Duration {
    if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil {
        return d
    }
    return def
}

// envSet reads a comma separated list into an upper-cased set.
func envSet(key, def string) map[string]bool {
    set := map[string]bool{}
    for _, p := range strings.Split(envStr(key, def), ",") {
        if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
            set[p] = true
        }
    }
    return set
}
