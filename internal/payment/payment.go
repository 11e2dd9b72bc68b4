// Package payment is the boundary to the subscription payment processor.
// The service layer depends only on Provider; Stripe and an in-memory mock
// implement it.
package payment

import (
	"context"
	"errors"

	"github.com/iliyamo/credit-cpr/internal/model"
)

// ErrWebhookDisabled is returned by ParseWebhook when no signing secret is
// configured.
var ErrWebhookDisabled = errors.New("payment: webhook secret not configured")

// CheckoutSession is a hosted checkout page started for one purchase.
type CheckoutSession struct {
	ID  string
	URL string
}

// CompletedSession is the subset of a finished checkout the app needs to
// turn a payment into a plan.
type CompletedSession struct {
	ID         string
	Email      string // metadata user_email, falling back to the customer email
	CustomerID string
	PriceID    string
	Paid       bool
}

// Subscription is an active recurring plan at the processor.
type Subscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CustomerID        string `json:"customer_id"`
	PriceID           string `json:"price_id"`
	PlanName          string `json:"plan_name,omitempty"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

// Provider abstracts the payment processor.
type Provider interface {
	// CreateCheckoutSession starts a subscription checkout for priceID.
	CreateCheckoutSession(ctx context.Context, priceID, userEmail, successURL, cancelURL string) (CheckoutSession, error)
	// RetrieveCompletedSession loads a checkout session by id.
	RetrieveCompletedSession(ctx context.Context, sessionID string) (CompletedSession, error)
	// GetActiveSubscription returns the first active subscription of the
	// customer with that email, or nil when there is none.
	GetActiveSubscription(ctx context.Context, customerEmail string) (*Subscription, error)
	// CreatePortalSession returns a self-service billing portal URL.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// Event types the app reacts to.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event is a verified processor notification reduced to the fields used
// for plan changes.
type Event struct {
	ID         string
	Type       string
	SessionID  string
	CustomerID string
}

// WebhookParser verifies and decodes processor notifications.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (Event, error)
}

// PriceTable holds the two price ids sold by the app.
type PriceTable struct {
	Basic string
	Pro   string
}

// PlanFor maps a purchased price id to a plan.  Unknown prices map to
// premium, matching how the catalogue was first sold.
func (t PriceTable) PlanFor(priceID string) model.Plan {
	switch priceID {
	case t.Basic:
		return model.PlanBasic
	case t.Pro:
		return model.PlanPro
	}
	return model.PlanPremium
}

// PriceFor returns the price id sold for plan.
func (t PriceTable) PriceFor(plan model.Plan) (string, bool) {
	switch plan {
	case model.PlanBasic:
		return t.Basic, t.Basic != ""
	case model.PlanPro:
		return t.Pro, t.Pro != ""
	}
	return "", false
}
