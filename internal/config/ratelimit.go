package config

import "time"

type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    Debug          bool
}

// LoadRateLimitConfig returns the limiter applied to the whole API.
func LoadRateLimitConfig() RateLimitConfig {
    return loadRateLimit("RATE_LIMIT", RateLimitConfig{
        Capacity:       60,
        RefillTokens:   1,
        RefillInterval: time.Second,
        TTL:            10 * time.Minute,
        KeyStrategy:    "ip_user_route",
        Prefix:         "rl",
    })
}

// LoadAuthRateLimitConfig returns the stricter limiter placed in front of
// login, register and password reset, keyed by client IP and route so a
// single address cannot brute force credentials or spray reset mails.
func LoadAuthRateLimitConfig() RateLimitConfig {
    return loadRateLimit("AUTH_RATE_LIMIT", RateLimitConfig{
        Capacity:       10,
        RefillTokens:   1,
        RefillInterval: 30 * time.Second,
        TTL:            30 * time.Minute,
        KeyStrategy:    "ip_route",
        Prefix:         "rl:auth",
    })
}

func loadRateLimit(env string, base RateLimitConfig) RateLimitConfig {
    def := RateLimitConfig{
        Enabled:        envBool(env+"_ENABLED", true),
        Capacity:       envInt(env+"_CAPACITY", base.Capacity),
        RefillTokens:   envInt(env+"_REFILL_TOKENS", base.RefillTokens),
        RefillInterval: envDur(env+"_REFILL_INTERVAL", base.RefillInterval),
        TTL:            envDur(env+"_TTL", base.TTL),
        KeyStrategy:    getenv(env+"_KEY_STRATEGY", base.KeyStrategy),
        Prefix:         getenv(env+"_PREFIX", base.Prefix),
        Debug:          envBool(env+"_DEBUG", false),
    }
    if b := envInt(env+"_BURST", -1); b > 0 { def.Capacity = b }
    if every := envDur(env+"_REFILL_EVERY", 0); every > 0 {
        def.RefillTokens = 1
        def.RefillInterval = every
    }
    if def.Capacity < 1 { def.Capacity = 1 }
    if def.RefillTokens < 1 { def.RefillTokens = 1 }
    if def.RefillInterval <= 0 { def.RefillInterval = time.Second }
    minTTL := 5 * def.RefillInterval
    if def.TTL < minTTL { def.TTL = minTTL }
    return def
}
