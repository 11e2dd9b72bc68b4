package config

import (
    "log"
    "net/http"
    "strings"
    "time"
)

// CacheConfig controls the response cache in front of the public plan
// catalog.  Only safe methods can be cached; anything else listed in
// CACHE_METHODS is dropped at load.  Version is part of every key, so
// bumping CACHE_VERSION after a price change orphans the old catalog.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool
    TTL          time.Duration
    KeyStrategy  string // route | route_query | method_route | method_route_query
    Prefix       string // includes Version
    Version      string
    MaxBodyBytes int
}

// LoadCacheConfig reads the CACHE_* variables.
func LoadCacheConfig() CacheConfig {
    version := getenv("CACHE_VERSION", "v1")
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      safeMethods(getenv("CACHE_METHODS", "GET")),
        TTL:          envDur("CACHE_TTL", 10*time.Minute),
        KeyStrategy:  getenv("CACHE_KEY_STRATEGY", "route_query"),
        Prefix:       getenv("CACHE_PREFIX", "cpr:cache") + ":" + version,
        Version:      version,
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 64<<10),
    }
}

func safeMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range strings.Split(s, ",") {
        p = strings.ToUpper(strings.TrimSpace(p))
        switch p {
        case "":
        case http.MethodGet, http.MethodHead:
            m[p] = true
        default:
            log.Printf("cache: ignoring non-cacheable method %q", p)
        }
    }
    return m
}
