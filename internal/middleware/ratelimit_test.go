package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/credit-cpr/internal/config"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    return mr, rdb
}

func limitedServer(cfg config.RateLimitConfig, rdb *redis.Client) *echo.Echo {
    e := echo.New()
    ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
    e.POST("/v1/auth/login", ok, NewTokenBucket(cfg, rdb))
    e.POST("/v1/auth/register", ok, NewTokenBucket(cfg, rdb))
    return e
}

func post(e *echo.Echo, path, ip string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(http.MethodPost, path, nil)
    req.Header.Set("X-Real-IP", ip)
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestTokenBucketBlocksAfterCapacity(t *testing.T) {
    _, rdb := newRedis(t)
    cfg := config.RateLimitConfig{
        Enabled:        true,
        Capacity:       2,
        RefillTokens:   1,
        RefillInterval: time.Hour,
        TTL:            2 * time.Hour,
        KeyStrategy:    "ip_route",
        Prefix:         "rl:test",
    }
    e := limitedServer(cfg, rdb)

    first := post(e, "/v1/auth/login", "10.0.0.1")
    require.Equal(t, http.StatusOK, first.Code)
    assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
    assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

    assert.Equal(t, http.StatusOK, post(e, "/v1/auth/login", "10.0.0.1").Code)

    blocked := post(e, "/v1/auth/login", "10.0.0.1")
    assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
    assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
    assert.Contains(t, blocked.Body.String(), "rate limit exceeded")

    // separate buckets per address and per route
    assert.Equal(t, http.StatusOK, post(e, "/v1/auth/login", "10.0.0.2").Code)
    assert.Equal(t, http.StatusOK, post(e, "/v1/auth/register", "10.0.0.1").Code)
}

func TestTokenBucketFailsOpen(t *testing.T) {
    mr, rdb := newRedis(t)
    cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour, Prefix: "rl"}
    e := limitedServer(cfg, rdb)
    mr.Close()

    for i := 0; i < 3; i++ {
        assert.Equal(t, http.StatusOK, post(e, "/v1/auth/login", "10.0.0.1").Code)
    }

    disabled := limitedServer(cfg, nil)
    assert.Equal(t, http.StatusOK, post(disabled, "/v1/auth/login", "10.0.0.1").Code)
}
