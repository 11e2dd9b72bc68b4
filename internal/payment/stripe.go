package payment

import (
	"context"
	"encoding/json"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	portal "github.com/stripe/stripe-go/v82/billingportal/session"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements Provider and WebhookParser using the Stripe API.
type StripeProvider struct {
	webhookSecret string
}

// NewStripeProvider sets the Stripe API key and returns a provider.  An
// empty webhookSecret disables ParseWebhook.
func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{webhookSecret: webhookSecret}
}

// CreateCheckoutSession starts a subscription checkout.  The success URL
// receives the session id so the return handler can reconcile it.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, priceID, userEmail, successURL, cancelURL string) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail: stripe.String(userEmail),
		SuccessURL:    stripe.String(successURL),
		CancelURL:     stripe.String(cancelURL),
	}
	params.Context = ctx
	params.AddMetadata("user_email", userEmail)

	sess, err := session.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// RetrieveCompletedSession loads a checkout session with its line items.
func (p *StripeProvider) RetrieveCompletedSession(ctx context.Context, sessionID string) (CompletedSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")

	sess, err := session.Get(sessionID, params)
	if err != nil {
		return CompletedSession{}, fmt.Errorf("stripe: retrieve checkout session: %w", err)
	}
	return completedFromStripe(sess), nil
}

func completedFromStripe(sess *stripe.CheckoutSession) CompletedSession {
	out := CompletedSession{
		ID:   sess.ID,
		Paid: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	switch {
	case sess.Metadata["user_email"] != "":
		out.Email = sess.Metadata["user_email"]
	case sess.CustomerEmail != "":
		out.Email = sess.CustomerEmail
	case sess.CustomerDetails != nil:
		out.Email = sess.CustomerDetails.Email
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if sess.LineItems != nil && len(sess.LineItems.Data) > 0 && sess.LineItems.Data[0].Price != nil {
		out.PriceID = sess.LineItems.Data[0].Price.ID
	}
	return out
}

// GetActiveSubscription finds the customer by email and returns its first
// active subscription.
func (p *StripeProvider) GetActiveSubscription(ctx context.Context, customerEmail string) (*Subscription, error) {
	cparams := &stripe.CustomerListParams{Email: stripe.String(customerEmail)}
	cparams.Context = ctx
	cparams.Limit = stripe.Int64(1)
	ci := customer.List(cparams)
	if !ci.Next() {
		if err := ci.Err(); err != nil {
			return nil, fmt.Errorf("stripe: list customers: %w", err)
		}
		return nil, nil
	}
	cust := ci.Customer()

	sparams := &stripe.SubscriptionListParams{
		Customer: stripe.String(cust.ID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	sparams.Context = ctx
	sparams.Limit = stripe.Int64(1)
	si := subscription.List(sparams)
	if !si.Next() {
		if err := si.Err(); err != nil {
			return nil, fmt.Errorf("stripe: list subscriptions: %w", err)
		}
		return nil, nil
	}
	sub := si.Subscription()
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CustomerID:        cust.ID,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
		out.PlanName = sub.Items.Data[0].Price.Nickname
	}
	return out, nil
}

// CreatePortalSession opens the Stripe customer portal.
func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := portal.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create portal session: %w", err)
	}
	return sess.URL, nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the ids
// needed by EventCheckoutCompleted and EventSubscriptionDeleted.  Other
// event types are returned with only ID and Type set.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (Event, error) {
	if p.webhookSecret == "" {
		return Event{}, ErrWebhookDisabled
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, fmt.Errorf("stripe: webhook signature verification failed: %w", err)
	}
	out := Event{ID: ev.ID, Type: string(ev.Type)}
	switch out.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return Event{}, fmt.Errorf("stripe: parse checkout session: %w", err)
		}
		out.SessionID = sess.ID
		if sess.Customer != nil {
			out.CustomerID = sess.Customer.ID
		}
	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return Event{}, fmt.Errorf("stripe: parse subscription: %w", err)
		}
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
	}
	return out, nil
}
