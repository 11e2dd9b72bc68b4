package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/credit-cpr/internal/model"
	"github.com/iliyamo/credit-cpr/internal/payment"
	"github.com/iliyamo/credit-cpr/internal/service"
)

// maxWebhookBody bounds the webhook payload read into memory.
const maxWebhookBody = 64 << 10

// BillingHandler serves checkout, the checkout return page, subscription
// management and the processor webhook.
type BillingHandler struct {
	Billing  *service.Billing
	Webhooks payment.WebhookParser
}

func NewBillingHandler(b *service.Billing, webhooks payment.WebhookParser) *BillingHandler {
	return &BillingHandler{Billing: b, Webhooks: webhooks}
}

type checkoutReq struct {
	Plan string `json:"plan"`
}

// Checkout starts a hosted checkout for the requested plan.
func (h *BillingHandler) Checkout(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	var req checkoutReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	plan, ok := model.ParsePlan(req.Plan)
	if !ok {
		return badRequest(c, "unknown plan")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	cs, err := h.Billing.StartCheckout(ctx, s.User, plan)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": cs.ID, "url": cs.URL})
}

// Return handles the browser coming back from checkout.  A successful
// session is reconciled; repeating the request is harmless.
func (h *BillingHandler) Return(c echo.Context) error {
	switch c.QueryParam("checkout") {
	case "cancel":
		return c.JSON(http.StatusOK, echo.Map{"message": "Checkout cancelled. You can upgrade anytime."})
	case "success":
	default:
		return badRequest(c, "checkout must be success or cancel")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	rec, err := h.Billing.Reconcile(ctx, c.QueryParam("session_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":        fmt.Sprintf("Payment successful! Your account has been upgraded to %s.", rec.Plan),
		"reconciliation": rec,
	})
}

// Subscription shows the caller's active subscription, if any.
func (h *BillingHandler) Subscription(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	sub, err := h.Billing.Subscription(ctx, s.User)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"subscription": sub})
}

// Portal opens the billing portal for the caller.
func (h *BillingHandler) Portal(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	url, err := h.Billing.Portal(ctx, s.User)
	if errors.Is(err, service.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "No active subscription found"})
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url})
}

// Webhook verifies and applies processor events.  A failure to apply
// answers 500 so the processor retries.
func (h *BillingHandler) Webhook(c echo.Context) error {
	if h.Webhooks == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "webhook not configured"})
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	ev, err := h.Webhooks.ParseWebhook(body, c.Request().Header.Get("Stripe-Signature"))
	if errors.Is(err, payment.ErrWebhookDisabled) {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "webhook not configured"})
	}
	if err != nil {
		c.Logger().Warnf("webhook rejected: %v", err)
		return badRequest(c, "invalid signature")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	if err := h.Billing.HandleEvent(ctx, ev); err != nil {
		c.Logger().Errorf("webhook %s %s: %v", ev.Type, ev.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "event not applied"})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
