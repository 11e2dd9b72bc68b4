package service

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/iliyamo/credit-cpr/internal/metrics"
	"github.com/iliyamo/credit-cpr/internal/model"
	"github.com/iliyamo/credit-cpr/internal/payment"
	"github.com/iliyamo/credit-cpr/internal/repository"
)

// Billing connects checkout and subscription events from the payment
// provider to the ledger.
type Billing struct {
	DB        *sql.DB
	Users     *repository.UserRepo
	Checkouts *repository.CheckoutRepo
	Ledger    *Ledger
	Provider  payment.Provider
	Prices    payment.PriceTable
	PublicURL string
	Metrics   *metrics.Collector
	Now       Clock
}

func NewBilling(db *sql.DB, ledger *Ledger, provider payment.Provider, prices payment.PriceTable, publicURL string, m *metrics.Collector) *Billing {
	return &Billing{
		DB:        db,
		Users:     repository.NewUserRepo(db),
		Checkouts: repository.NewCheckoutRepo(db),
		Ledger:    ledger,
		Provider:  provider,
		Prices:    prices,
		PublicURL: publicURL,
		Metrics:   m,
	}
}

// StartCheckout opens a hosted checkout for plan.  Only plans with a
// configured price can be bought.
func (b *Billing) StartCheckout(ctx context.Context, u model.User, plan model.Plan) (payment.CheckoutSession, error) {
	priceID, ok := b.Prices.PriceFor(plan)
	if !ok {
		return payment.CheckoutSession{}, invalid("plan is not for sale")
	}
	success := b.PublicURL + "/v1/billing/return?checkout=success&session_id={CHECKOUT_SESSION_ID}"
	cancel := b.PublicURL + "/v1/billing/return?checkout=cancel"
	cs, err := b.Provider.CreateCheckoutSession(ctx, priceID, u.Email, success, cancel)
	if err != nil {
		b.Metrics.Checkout("failed")
		return payment.CheckoutSession{}, providerErr("create checkout session", err)
	}
	b.Metrics.Checkout("started")
	return cs, nil
}

// Reconciliation reports what Reconcile did.
type Reconciliation struct {
	UserID           uint64     `json:"user_id"`
	Plan             model.Plan `json:"plan"`
	AlreadyProcessed bool       `json:"already_processed"`
}

// Reconcile turns a completed checkout into a plan change exactly once per
// session id.  The provider is queried before the transaction opens; the
// processed_checkouts row, customer link and SetPlanTx then commit
// together, so duplicate callbacks are harmless.
func (b *Billing) Reconcile(ctx context.Context, sessionID string) (Reconciliation, error) {
	if sessionID == "" {
		return Reconciliation{}, invalid("session_id is required")
	}
	if done, err := b.Checkouts.Get(ctx, sessionID); err == nil {
		b.Metrics.Checkout("duplicate")
		return Reconciliation{UserID: done.UserID, Plan: done.Plan, AlreadyProcessed: true}, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Reconciliation{}, err
	}

	sess, err := b.Provider.RetrieveCompletedSession(ctx, sessionID)
	if err != nil {
		b.Metrics.Checkout("failed")
		return Reconciliation{}, providerErr("retrieve checkout session", err)
	}
	if !sess.Paid {
		return Reconciliation{}, invalid("Payment has not completed")
	}
	u, err := b.Users.GetByEmail(ctx, sess.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return Reconciliation{}, ErrNotFound
	}
	if err != nil {
		return Reconciliation{}, err
	}
	plan := b.Prices.PlanFor(sess.PriceID)
	out := Reconciliation{UserID: u.ID, Plan: plan}

	var changed PlanChanged
	err = repository.WithTx(ctx, b.DB, func(tx *sql.Tx) error {
		if err := b.Checkouts.InsertTx(ctx, tx, model.ProcessedCheckout{
			SessionID:   sessionID,
			UserID:      u.ID,
			Plan:        plan,
			ProcessedAt: b.Now.now(),
		}); err != nil {
			return err
		}
		if sess.CustomerID != "" {
			if err := b.Users.SetStripeCustomerTx(ctx, tx, u.ID, sess.CustomerID); err != nil {
				return err
			}
		}
		pc, err := b.Ledger.SetPlanTx(ctx, tx, PlanChange{
			UserID: u.ID,
			Plan:   plan,
			Actor:  ActorStripe,
			Reason: "Checkout " + sessionID,
			Source: "stripe",
		})
		changed = pc
		return err
	})
	if errors.Is(err, repository.ErrDuplicate) {
		b.Metrics.Checkout("duplicate")
		out.AlreadyProcessed = true
		return out, nil
	}
	if err != nil {
		b.Metrics.Checkout("failed")
		return Reconciliation{}, err
	}
	b.Ledger.Announce(ctx, changed)
	b.Metrics.Checkout("reconciled")
	return out, nil
}

// Subscription returns the user's active subscription, or nil.
func (b *Billing) Subscription(ctx context.Context, u model.User) (*payment.Subscription, error) {
	sub, err := b.Provider.GetActiveSubscription(ctx, u.Email)
	if err != nil {
		return nil, providerErr("get active subscription", err)
	}
	return sub, nil
}

// Portal opens the self-service billing portal.  The customer id comes
// from the user record, or from the active subscription when the user has
// not been linked yet.
func (b *Billing) Portal(ctx context.Context, u model.User) (string, error) {
	customerID := ""
	if u.StripeCustomerID != nil {
		customerID = *u.StripeCustomerID
	}
	if customerID == "" {
		sub, err := b.Subscription(ctx, u)
		if err != nil {
			return "", err
		}
		if sub == nil || sub.CustomerID == "" {
			return "", ErrNotFound
		}
		customerID = sub.CustomerID
	}
	link, err := b.Provider.CreatePortalSession(ctx, customerID, b.PublicURL+"/")
	if err != nil {
		return "", providerErr("create portal session", err)
	}
	return link, nil
}

// SubscriptionEnded downgrades the customer's user to free.
func (b *Billing) SubscriptionEnded(ctx context.Context, customerID string) error {
	if customerID == "" {
		return invalid("customer id is required")
	}
	u, err := b.Users.GetByStripeCustomer(ctx, customerID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if u.Plan == model.PlanFree {
		return nil
	}
	_, err = b.Ledger.SetPlan(ctx, PlanChange{
		UserID: u.ID,
		Plan:   model.PlanFree,
		Actor:  ActorStripe,
		Reason: "Subscription cancelled",
		Source: "stripe",
	})
	return err
}

// HandleEvent applies a verified webhook event.  Unhandled types are
// ignored, as are events for customers this app does not know.
func (b *Billing) HandleEvent(ctx context.Context, ev payment.Event) error {
	var err error
	switch ev.Type {
	case payment.EventCheckoutCompleted:
		_, err = b.Reconcile(ctx, ev.SessionID)
	case payment.EventSubscriptionDeleted:
		err = b.SubscriptionEnded(ctx, ev.CustomerID)
	default:
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		log.Printf("billing: %s %s refers to an unknown user; ignored", ev.Type, ev.ID)
		return nil
	}
	return err
}
