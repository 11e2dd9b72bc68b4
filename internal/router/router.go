package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql" // database handle for the health probe
	"net/http"     // metrics handler type

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/credit-cpr/internal/handler"    // HTTP handlers
	"github.com/iliyamo/credit-cpr/internal/middleware" // session and admin guards
)

// Handlers groups every handler the API exposes.
type Handlers struct {
	Auth     *handler.AuthHandler
	Password *handler.PasswordHandler
	OAuth    *handler.OAuthHandler
	Account  *handler.AccountHandler
	Discount *handler.DiscountHandler
	Billing  *handler.BillingHandler
	Admin    *handler.AdminHandler
	Plans    *handler.PlansHandler
}

// Guards are the middleware placed in front of route groups.  Session
// must be middleware.Auth; AuthLimit is the stricter limiter for
// credential endpoints and Cache wraps the public catalog.  Nil limiters
// and caches are skipped.
type Guards struct {
	Session   echo.MiddlewareFunc
	AuthLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}

// RegisterRoutes registers the operational endpoints: the health probe
// and the Prometheus scrape target.
func RegisterRoutes(e *echo.Echo, db *sql.DB, metrics http.Handler) {
	e.GET("/healthz", handler.Health(db))
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterAPI registers every /v1 route.  Unauthenticated operations live
// under /v1/auth plus the catalog, the checkout return page and the
// webhook; everything else requires a session, and /v1/admin also the
// admin role.
func RegisterAPI(e *echo.Echo, h Handlers, g Guards) {
	limited := optional(g.AuthLimit)

	// Plan catalog, cached because it only depends on configuration.
	e.GET("/v1/plans", h.Plans.List, optional(g.Cache)...)

	// Session lifecycle.  Register, login and the reset endpoints sit
	// behind the stricter limiter to slow down credential stuffing and
	// reset mail spraying.
	a := e.Group("/v1/auth")
	a.POST("/register", h.Auth.Register, limited...)
	a.POST("/login", h.Auth.Login, limited...)
	a.POST("/refresh", h.Auth.Refresh)
	a.POST("/logout", h.Auth.Logout)
	a.POST("/password/forgot", h.Password.Forgot, limited...)
	a.GET("/password/reset", h.Password.Check, limited...)
	a.POST("/password/reset", h.Password.Complete, limited...)
	a.GET("/google/login", h.OAuth.Start)
	a.GET("/google/callback", h.OAuth.Callback, limited...)

	// The processor calls these without a session: the browser returns
	// from checkout, and the webhook is authenticated by its signature.
	e.GET("/v1/billing/return", h.Billing.Return)
	e.POST("/v1/billing/webhook", h.Billing.Webhook)

	// Routes for the signed-in user.
	v1 := e.Group("/v1", g.Session)
	v1.GET("/me", h.Auth.Me)
	v1.GET("/entitlements/analyze", h.Account.CanAnalyze)
	v1.GET("/analyses", h.Account.Analyses)
	v1.POST("/analyses", h.Account.RecordAnalysis)
	v1.GET("/stats", h.Account.Stats)
	v1.GET("/letters", h.Account.Letters)
	v1.POST("/letters", h.Account.SaveLetter)
	v1.POST("/letters/:id/purchase", h.Account.PurchaseLetter)
	v1.GET("/letters/:id/download", h.Account.DownloadLetter)
	v1.POST("/discounts/redeem", h.Discount.Redeem)
	v1.POST("/billing/checkout", h.Billing.Checkout)
	v1.GET("/billing/subscription", h.Billing.Subscription)
	v1.POST("/billing/portal", h.Billing.Portal)

	// Back office.
	adm := e.Group("/v1/admin", g.Session, middleware.RequireAdmin())
	adm.POST("/grants", h.Admin.Grant)
	adm.POST("/discounts", h.Admin.CreateDiscount)
	adm.GET("/users", h.Admin.Users)
	adm.GET("/users/:id/overrides", h.Admin.Overrides)
	adm.POST("/users/:id/plan", h.Admin.SetPlan)
	adm.POST("/users/:id/admin", h.Admin.SetRole)
}
