package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/credit-cpr/internal/config"
)

func TestRedisCacheReplaysPublicResponses(t *testing.T) {
    _, rdb := newRedis(t)
    cfg := config.CacheConfig{
        Enabled:      true,
        Methods:      map[string]bool{http.MethodGet: true},
        TTL:          time.Minute,
        KeyStrategy:  "route_query",
        Prefix:       "cpr:cache",
        MaxBodyBytes: 1 << 20,
    }
    calls := 0
    e := echo.New()
    e.GET("/v1/plans", func(c echo.Context) error {
        calls++
        return c.JSON(http.StatusOK, echo.Map{"plans": []string{"free", "basic"}})
    }, NewRedisCache(cfg, rdb))

    fetch := func(authz string) *httptest.ResponseRecorder {
        req := httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
        if authz != "" {
            req.Header.Set("Authorization", authz)
        }
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, req)
        return rec
    }

    miss := fetch("")
    require.Equal(t, http.StatusOK, miss.Code)
    assert.Equal(t, "MISS", miss.Header().Get("X-Cache"))

    hit := fetch("")
    require.Equal(t, http.StatusOK, hit.Code)
    assert.Equal(t, "HIT", hit.Header().Get("X-Cache"))
    assert.JSONEq(t, miss.Body.String(), hit.Body.String())
    assert.Contains(t, hit.Header().Get(echo.HeaderContentType), "application/json")
    assert.Equal(t, 1, calls)

    bypass := fetch("Bearer x")
    assert.Empty(t, bypass.Header().Get("X-Cache"))
    assert.Equal(t, 2, calls)
}

func TestRedisCacheSkipsErrors(t *testing.T) {
    _, rdb := newRedis(t)
    cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute, Prefix: "c"}
    calls := 0
    e := echo.New()
    e.GET("/flaky", func(c echo.Context) error {
        calls++
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "down"})
    }, NewRedisCache(cfg, rdb))

    for i := 0; i < 2; i++ {
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/flaky", nil))
        assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
    }
    assert.Equal(t, 2, calls)
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
    _, _, _, ok := decodePayload([]byte{0, 0})
    assert.False(t, ok)

    bs, err := encodePayload(http.StatusOK, http.Header{"X-A": {"1"}}, []byte("body"))
    require.NoError(t, err)
    status, hdr, body, ok := decodePayload(bs)
    require.True(t, ok)
    assert.Equal(t, http.StatusOK, status)
    assert.Equal(t, "1", hdr.Get("X-A"))
    assert.Equal(t, "body", string(body))
}
