// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cpr"

// Collector owns a private registry and the counters the services bump.
// All methods are safe on a nil *Collector, which lets tests and tools
// construct services without metrics.
type Collector struct {
	registry *prometheus.Registry

	AuthAttempts        *prometheus.CounterVec
	PlanChanges         *prometheus.CounterVec
	DiscountRedemptions *prometheus.CounterVec
	ResetTokens         *prometheus.CounterVec
	Checkouts           *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New builds a Collector with its own registry plus the Go runtime and
// process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Login, signup and identity-provider attempts by method and result",
		}, []string{"method", "result"}),
		PlanChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_changes_total",
			Help:      "Plan mutations by target plan and source",
		}, []string{"plan", "source"}),
		DiscountRedemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_redemptions_total",
			Help:      "Discount code redemption attempts by result",
		}, []string{"result"}),
		ResetTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_reset_tokens_total",
			Help:      "Password reset tokens by stage (issued, redeemed, rejected)",
		}, []string{"stage"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout sessions by result (started, reconciled, duplicate, failed)",
		}, []string{"result"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(
		c.AuthAttempts, c.PlanChanges, c.DiscountRedemptions, c.ResetTokens, c.Checkouts,
		c.HTTPRequestsTotal, c.HTTPRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Auth counts an authentication attempt.
func (c *Collector) Auth(method, result string) {
	if c == nil {
		return
	}
	c.AuthAttempts.WithLabelValues(method, result).Inc()
}

// PlanChanged counts a plan mutation.
func (c *Collector) PlanChanged(plan, source string) {
	if c == nil {
		return
	}
	c.PlanChanges.WithLabelValues(plan, source).Inc()
}

// Redemption counts a discount code redemption attempt.
func (c *Collector) Redemption(result string) {
	if c == nil {
		return
	}
	c.DiscountRedemptions.WithLabelValues(result).Inc()
}

// ResetToken counts a reset token lifecycle step.
func (c *Collector) ResetToken(stage string) {
	if c == nil {
		return
	}
	c.ResetTokens.WithLabelValues(stage).Inc()
}

// Checkout counts a checkout lifecycle step.
func (c *Collector) Checkout(result string) {
	if c == nil {
		return
	}
	c.Checkouts.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by route pattern.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			status := ctx.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			method := ctx.Request().Method
			c.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			c.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
