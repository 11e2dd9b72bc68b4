package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.Auth("password", "ok")
	c.PlanChanged("pro", "admin")
	c.Redemption("ok")
	c.ResetToken("issued")
	c.Checkout("started")
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCountersIncrement(t *testing.T) {
	c := New()
	c.Auth("password", "ok")
	c.Auth("password", "ok")
	c.PlanChanged("pro", "discount")
	body := scrape(t, c)
	assert.Contains(t, body, `cpr_auth_attempts_total{method="password",result="ok"} 2`)
	assert.Contains(t, body, `cpr_plan_changes_total{plan="pro",source="discount"} 1`)
}

func TestMiddlewareAndHandler(t *testing.T) {
	c := New()
	e := echo.New()
	e.Use(c.Middleware())
	e.GET("/ping", func(ctx echo.Context) error { return ctx.String(http.StatusOK, "pong") })
	e.GET("/metrics", echo.WrapHandler(c.Handler()))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `cpr_http_requests_total{method="GET",path="/ping",status_code="200"} 1`), body)
}
