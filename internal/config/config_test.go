package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestParseEmailList(t *testing.T) {
    got := ParseEmailList(" Admin@Example.com, ,ops@example.com ,")
    assert.Equal(t, []string{"admin@example.com", "ops@example.com"}, got)
    assert.Nil(t, ParseEmailList(""))
}

func TestLoadAuthRateLimitConfigDefaults(t *testing.T) {
    cfg := LoadAuthRateLimitConfig()
    assert.True(t, cfg.Enabled)
    assert.Equal(t, 10, cfg.Capacity)
    assert.Equal(t, "ip_route", cfg.KeyStrategy)
    assert.Equal(t, "rl:auth", cfg.Prefix)
    assert.GreaterOrEqual(t, cfg.TTL, 5*cfg.RefillInterval)
}

func TestLoadRateLimitConfigOverrides(t *testing.T) {
    t.Setenv("RATE_LIMIT_BURST", "5")
    t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
    t.Setenv("RATE_LIMIT_ENABLED", "off")
    cfg := LoadRateLimitConfig()
    assert.False(t, cfg.Enabled)
    assert.Equal(t, 5, cfg.Capacity)
    assert.Equal(t, 1, cfg.RefillTokens)
    assert.Equal(t, 2*time.Second, cfg.RefillInterval)
    assert.Equal(t, 10*time.Minute, cfg.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
    t.Setenv("CACHE_METHODS", "get, head, post")
    t.Setenv("CACHE_VERSION", "v7")
    cfg := LoadCacheConfig()
    assert.True(t, cfg.Methods["GET"])
    assert.True(t, cfg.Methods["HEAD"])
    assert.False(t, cfg.Methods["POST"])
    assert.Equal(t, 10*time.Minute, cfg.TTL)
    assert.Equal(t, "cpr:cache:v7", cfg.Prefix)
}

func TestRedisOptions(t *testing.T) {
    t.Setenv("REDIS_HOST", "cache.internal")
    t.Setenv("REDIS_PORT", "6380")
    t.Setenv("REDIS_DB", "2")
    t.Setenv("REDIS_TLS", "true")
    opts, err := redisOptions()
    require.NoError(t, err)
    assert.Equal(t, "cache.internal:6380", opts.Addr)
    assert.Equal(t, 2, opts.DB)
    require.NotNil(t, opts.TLSConfig)
    assert.Equal(t, "cache.internal", opts.TLSConfig.ServerName)

    t.Setenv("REDIS_URL", "redis://:s3cret@10.0.0.9:6379/4")
    opts, err = redisOptions()
    require.NoError(t, err)
    assert.Equal(t, "10.0.0.9:6379", opts.Addr)
    assert.Equal(t, "s3cret", opts.Password)
    assert.Equal(t, 4, opts.DB)
}
