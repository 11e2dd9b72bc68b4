package payment

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a test double that records calls and returns
// configurable results.
type MockProvider struct {
	mu sync.Mutex

	// Sessions maps session id -> completed session returned by
	// RetrieveCompletedSession.
	Sessions map[string]CompletedSession
	// Subscriptions maps customer email -> active subscription.
	Subscriptions map[string]*Subscription

	// Checkouts collects (priceID, email) pairs passed to
	// CreateCheckoutSession.
	Checkouts []CheckoutCall
	// Retrievals counts RetrieveCompletedSession calls.
	Retrievals int

	// Error fields allow tests to inject failures.
	CheckoutErr     error
	RetrieveErr     error
	SubscriptionErr error
	PortalErr       error

	nextSeq int
}

// CheckoutCall records one CreateCheckoutSession call.
type CheckoutCall struct {
	PriceID    string
	Email      string
	SuccessURL string
	CancelURL  string
}

// NewMockProvider creates a MockProvider ready for use.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Sessions:      make(map[string]CompletedSession),
		Subscriptions: make(map[string]*Subscription),
	}
}

// CreateCheckoutSession records the call and returns a fake session.
func (m *MockProvider) CreateCheckoutSession(_ context.Context, priceID, userEmail, successURL, cancelURL string) (CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CheckoutErr != nil {
		return CheckoutSession{}, m.CheckoutErr
	}
	m.nextSeq++
	id := fmt.Sprintf("cs_mock_%d", m.nextSeq)
	m.Checkouts = append(m.Checkouts, CheckoutCall{PriceID: priceID, Email: userEmail, SuccessURL: successURL, CancelURL: cancelURL})
	return CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

// RetrieveCompletedSession returns the configured session.
func (m *MockProvider) RetrieveCompletedSession(_ context.Context, sessionID string) (CompletedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Retrievals++
	if m.RetrieveErr != nil {
		return CompletedSession{}, m.RetrieveErr
	}
	s, ok := m.Sessions[sessionID]
	if !ok {
		return CompletedSession{}, fmt.Errorf("mock: no such checkout session %s", sessionID)
	}
	return s, nil
}

// GetActiveSubscription returns the configured subscription or nil.
func (m *MockProvider) GetActiveSubscription(_ context.Context, customerEmail string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscriptionErr != nil {
		return nil, m.SubscriptionErr
	}
	return m.Subscriptions[customerEmail], nil
}

// CreatePortalSession returns a fake portal URL.
func (m *MockProvider) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PortalErr != nil {
		return "", m.PortalErr
	}
	return "https://portal.example/" + customerID + "?return=" + returnURL, nil
}
