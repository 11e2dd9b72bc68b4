package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/iliyamo/credit-cpr/internal/model"
)

func TestPriceTablePlanFor(t *testing.T) {
	prices := PriceTable{Basic: "price_basic", Pro: "price_pro"}
	assert.Equal(t, model.PlanBasic, prices.PlanFor("price_basic"))
	assert.Equal(t, model.PlanPro, prices.PlanFor("price_pro"))
	assert.Equal(t, model.PlanPremium, prices.PlanFor("price_other"))
	assert.Equal(t, model.PlanPremium, prices.PlanFor(""))
}

func TestPriceTablePriceFor(t *testing.T) {
	prices := PriceTable{Basic: "price_basic", Pro: "price_pro"}
	id, ok := prices.PriceFor(model.PlanPro)
	assert.True(t, ok)
	assert.Equal(t, "price_pro", id)
	_, ok = prices.PriceFor(model.PlanPremium)
	assert.False(t, ok)
	_, ok = PriceTable{}.PriceFor(model.PlanBasic)
	assert.False(t, ok)
}

func signed(t *testing.T, secret, payload string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(payload), Secret: secret})
	return sp.Header, sp.Payload
}

func TestParseWebhookCheckoutCompleted(t *testing.T) {
	p := NewStripeProvider("sk_test_x", "whsec_test")
	header, body := signed(t, "whsec_test", `{"id":"evt_1","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_123","object":"checkout.session","customer":"cus_9"}}}`)

	ev, err := p.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, Event{ID: "evt_1", Type: EventCheckoutCompleted, SessionID: "cs_123", CustomerID: "cus_9"}, ev)
}

func TestParseWebhookSubscriptionDeleted(t *testing.T) {
	p := NewStripeProvider("sk_test_x", "whsec_test")
	header, body := signed(t, "whsec_test", `{"id":"evt_2","object":"event","type":"customer.subscription.deleted",
		"data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_9"}}}`)

	ev, err := p.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, EventSubscriptionDeleted, ev.Type)
	assert.Equal(t, "cus_9", ev.CustomerID)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	p := NewStripeProvider("sk_test_x", "whsec_test")
	header, body := signed(t, "whsec_other", `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)
	_, err := p.ParseWebhook(body, header)
	assert.Error(t, err)
}

func TestParseWebhookDisabledWithoutSecret(t *testing.T) {
	p := NewStripeProvider("sk_test_x", "")
	_, err := p.ParseWebhook([]byte(`{}`), "")
	assert.ErrorIs(t, err, ErrWebhookDisabled)
}

func TestMockProvider(t *testing.T) {
	m := NewMockProvider()
	ctx := context.Background()

	cs, err := m.CreateCheckoutSession(ctx, "price_pro", "a@x.com", "ok", "cancel")
	require.NoError(t, err)
	assert.Equal(t, "cs_mock_1", cs.ID)
	require.Len(t, m.Checkouts, 1)

	_, err = m.RetrieveCompletedSession(ctx, "missing")
	assert.Error(t, err)

	m.RetrieveErr = errors.New("down")
	_, err = m.RetrieveCompletedSession(ctx, cs.ID)
	assert.EqualError(t, err, "down")

	sub, err := m.GetActiveSubscription(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, sub)
}
