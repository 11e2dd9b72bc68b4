package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/credit-cpr/internal/database/dbtest"
	"github.com/iliyamo/credit-cpr/internal/payment"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type published struct {
	queue string
	event any
}

// recorder is an in-memory Publisher.
type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(_ context.Context, queueName string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{queue: queueName, event: event})
	return nil
}

func (r *recorder) on(queueName string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, p := range r.events {
		if p.queue == queueName {
			out = append(out, p.event)
		}
	}
	return out
}

type fixture struct {
	db        *sql.DB
	now       time.Time
	events    *recorder
	provider  *payment.MockProvider
	creds     *Credentials
	ledger    *Ledger
	reset     *Reset
	discounts *Discounts
	billing   *Billing
}

func newFixture(t *testing.T, adminEmails ...string) *fixture {
	t.Helper()
	f := &fixture{db: dbtest.Open(t), now: t0, events: &recorder{}, provider: payment.NewMockProvider()}
	clock := Clock(func() time.Time { return f.now })

	f.ledger = NewLedger(f.db, f.events, nil, adminEmails)
	f.ledger.Now = clock
	f.creds = NewCredentials(f.ledger.Users, nil)
	f.creds.Now = clock
	f.reset = NewReset(f.db, f.events, nil, "https://app.example")
	f.reset.Now = clock
	f.discounts = NewDiscounts(f.db, f.ledger, nil)
	f.discounts.Now = clock
	f.billing = NewBilling(f.db, f.ledger, f.provider,
		payment.PriceTable{Basic: "price_basic", Pro: "price_pro"}, "https://app.example", nil)
	f.billing.Now = clock
	return f
}

func (f *fixture) signup(t *testing.T, email string) uint64 {
	t.Helper()
	id, err := f.creds.CreateAccount(context.Background(), email, "password123")
	require.NoError(t, err)
	return id
}

func (f *fixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

func intp(n int) *int { return &n }
