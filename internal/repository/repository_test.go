package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/credit-cpr/internal/database/dbtest"
	"github.com/iliyamo/credit-cpr/internal/model"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newUser(t *testing.T, db *sql.DB, email string) uint64 {
	t.Helper()
	id, err := NewUserRepo(db).Create(context.Background(), email, "hash", t0)
	require.NoError(t, err)
	return id
}

func TestUserCreateNormalizesAndRejectsDuplicate(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	users := NewUserRepo(db)

	id := newUser(t, db, "  Bob@Example.COM ")
	u, err := users.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "bob@example.com", u.Email)
	assert.Equal(t, model.PlanFree, u.Plan)
	assert.Equal(t, t0, u.CreatedAt)
	assert.Nil(t, u.StripeCustomerID)

	_, err = users.Create(ctx, "BOB@example.com", "other", t0)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestIsUniqueViolationTrustsDriverCodesOnly(t *testing.T) {
	assert.True(t, isUniqueViolation(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062})))
	assert.False(t, isUniqueViolation(&mysql.MySQLError{Number: 1452}))
	assert.False(t, isUniqueViolation(errors.New("UNIQUE constraint failed: users.email")))
	assert.False(t, isUniqueViolation(nil))
}

func TestSetAdmin(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	id := newUser(t, db, "a@example.com")

	require.NoError(t, users.SetAdmin(ctx, id, true))
	u, err := users.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)

	require.NoError(t, users.SetAdmin(ctx, id, false))
	u, err = users.GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, u.IsAdmin)

	assert.ErrorIs(t, users.SetAdmin(ctx, 999, true), ErrNotFound)
}

func TestIncrementReportsWithinFreeLimit(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	id := newUser(t, db, "a@example.com")
	bump := func(uid uint64) error {
		return WithTx(ctx, db, func(tx *sql.Tx) error { return users.IncrementReportsWithinTx(ctx, tx, uid, 1) })
	}

	require.NoError(t, bump(id))
	assert.ErrorIs(t, bump(id), ErrConflict)
	assert.ErrorIs(t, bump(999), ErrNotFound)

	require.NoError(t, WithTx(ctx, db, func(tx *sql.Tx) error { return users.SetPlanTx(ctx, tx, id, model.PlanPro) }))
	require.NoError(t, bump(id))
	u, err := users.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, u.ReportsAnalyzed)
}

func TestUserGetMissing(t *testing.T) {
	db := dbtest.Open(t)
	_, err := NewUserRepo(db).GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = NewUserRepo(db).GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserTxMutations(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	id := newUser(t, db, "a@example.com")

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if err := users.SetPlanTx(ctx, tx, id, model.PlanPro); err != nil {
			return err
		}
		if err := users.IncrementReportsTx(ctx, tx, id); err != nil {
			return err
		}
		if err := users.IncrementDisputesTx(ctx, tx, id); err != nil {
			return err
		}
		return users.SetStripeCustomerTx(ctx, tx, id, "cus_123")
	})
	require.NoError(t, err)

	u, err := users.GetByStripeCustomer(ctx, "cus_123")
	require.NoError(t, err)
	assert.Equal(t, model.PlanPro, u.Plan)
	assert.Equal(t, 1, u.ReportsAnalyzed)
	assert.Equal(t, 1, u.DisputesPurchased)

	err = WithTx(ctx, db, func(tx *sql.Tx) error { return users.SetPlanTx(ctx, tx, 404, model.PlanPro) })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTxRollsBack(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	id := newUser(t, db, "a@example.com")

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		require.NoError(t, users.SetPlanTx(ctx, tx, id, model.PlanPremium))
		return ErrConflict
	})
	assert.ErrorIs(t, err, ErrConflict)
	u, err := users.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, u.Plan)
}

func TestUserSearch(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	for i, e := range []string{"a@x.com", "b@x.com", "c@y.com"} {
		_, err := users.Create(ctx, e, "h", t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	list, total, err := users.Search(ctx, UserSearchQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, "c@y.com", list[0].Email)
	assert.Equal(t, "b@x.com", list[1].Email)

	list, _, err = users.Search(ctx, UserSearchQuery{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a@x.com", list[0].Email)

	list, total, err = users.Search(ctx, UserSearchQuery{Email: "@X.COM"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)

	list, total, err = users.Search(ctx, UserSearchQuery{Plan: model.PlanPro})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestOverridesAppendOnly(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	overrides := NewOverrideRepo(db)
	id := newUser(t, db, "a@example.com")

	_, err := overrides.Latest(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	exp := t0.Add(24 * time.Hour)
	for _, o := range []model.EntitlementOverride{
		{UserID: id, Type: "plan_pro", GrantedBy: "admin@x.com", CreatedAt: t0},
		{UserID: id, Type: "plan_premium", Reason: "promo", GrantedBy: "system", ExpiresAt: &exp, CreatedAt: t0},
	} {
		o := o
		require.NoError(t, WithTx(ctx, db, func(tx *sql.Tx) error { return overrides.InsertTx(ctx, tx, &o) }))
		assert.NotZero(t, o.ID)
	}

	latest, err := overrides.Latest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "plan_premium", latest.Type)
	require.NotNil(t, latest.ExpiresAt)
	assert.Equal(t, exp, *latest.ExpiresAt)

	all, err := overrides.ListByUser(ctx, id)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "plan_pro", all[1].Type)
	assert.Nil(t, all[1].ExpiresAt)
}

func intp(n int) *int { return &n }

func TestDiscountCreateAndLookupCaseInsensitive(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	discounts := NewDiscountRepo(db)

	plan := model.PlanPro
	d := model.DiscountCode{Code: "freepro", PlanOverride: &plan, UsesRemaining: intp(2), CreatedAt: t0}
	require.NoError(t, discounts.Create(ctx, &d))
	assert.Equal(t, "FREEPRO", d.Code)

	got, err := discounts.GetByCode(ctx, "FreePro")
	require.NoError(t, err)
	require.NotNil(t, got.PlanOverride)
	assert.Equal(t, model.PlanPro, *got.PlanOverride)
	assert.Nil(t, got.DiscountPercent)
	assert.Equal(t, 2, *got.UsesRemaining)

	dup := model.DiscountCode{Code: "FREEPRO", DiscountPercent: intp(10), CreatedAt: t0}
	assert.ErrorIs(t, discounts.Create(ctx, &dup), ErrDuplicate)

	_, err = discounts.GetByCode(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiscountConsumeIsCapped(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	discounts := NewDiscountRepo(db)

	d := model.DiscountCode{Code: "ONCE", DiscountPercent: intp(20), UsesRemaining: intp(1), CreatedAt: t0}
	require.NoError(t, discounts.Create(ctx, &d))

	consume := func() error {
		return WithTx(ctx, db, func(tx *sql.Tx) error { return discounts.ConsumeTx(ctx, tx, d.ID) })
	}
	require.NoError(t, consume())
	assert.ErrorIs(t, consume(), ErrConflict)

	got, err := discounts.GetByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 0, *got.UsesRemaining)
}

func TestDiscountConsumeUnbounded(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	discounts := NewDiscountRepo(db)

	d := model.DiscountCode{Code: "FOREVER", DiscountPercent: intp(5), CreatedAt: t0}
	require.NoError(t, discounts.Create(ctx, &d))
	for i := 0; i < 3; i++ {
		require.NoError(t, WithTx(ctx, db, func(tx *sql.Tx) error { return discounts.ConsumeTx(ctx, tx, d.ID) }))
	}
	got, err := discounts.GetByCode(ctx, "forever")
	require.NoError(t, err)
	assert.Nil(t, got.UsesRemaining)
}

func TestResetTokenMarkUsedOnce(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	tokens := NewResetTokenRepo(db)
	id := newUser(t, db, "a@example.com")

	require.NoError(t, tokens.Create(ctx, id, "hash-1", t0.Add(time.Hour), t0))
	tok, err := tokens.GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.False(t, tok.Used)
	assert.Equal(t, t0.Add(time.Hour), tok.ExpiresAt)

	mark := func(now time.Time) error {
		return WithTx(ctx, db, func(tx *sql.Tx) error { return tokens.MarkUsedTx(ctx, tx, tok.ID, now) })
	}
	require.NoError(t, mark(t0.Add(time.Minute)))
	assert.ErrorIs(t, mark(t0.Add(2*time.Minute)), ErrConflict)

	tok, err = tokens.GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, tok.Used)
}

func TestResetTokenMarkUsedRejectsExpired(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	tokens := NewResetTokenRepo(db)
	id := newUser(t, db, "a@example.com")

	require.NoError(t, tokens.Create(ctx, id, "hash-1", t0.Add(time.Hour), t0))
	tok, err := tokens.GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	err = WithTx(ctx, db, func(tx *sql.Tx) error { return tokens.MarkUsedTx(ctx, tx, tok.ID, t0.Add(61*time.Minute)) })
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRefreshTokens(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	tokens := NewTokenRepo(db)
	id := newUser(t, db, "a@example.com")

	require.NoError(t, tokens.StoreRefresh(ctx, id, "r1", t0.Add(time.Hour), t0))
	require.NoError(t, tokens.StoreRefresh(ctx, id, "r2", t0.Add(time.Hour), t0))
	require.NoError(t, tokens.StoreRefresh(ctx, id, "r3", t0.Add(time.Hour), t0))

	_, err := tokens.ConsumeRefresh(ctx, "r1", t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrConflict, "expired")

	got, err := tokens.ConsumeRefresh(ctx, "r1", t0)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = tokens.ConsumeRefresh(ctx, "r1", t0)
	assert.ErrorIs(t, err, ErrConflict, "already consumed")
	assert.ErrorIs(t, tokens.RevokeByHash(ctx, "r1", t0), ErrConflict)
	_, err = tokens.ConsumeRefresh(ctx, "missing", t0)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, tokens.RevokeByHash(ctx, "r2", t0))
	require.NoError(t, WithTx(ctx, db, func(tx *sql.Tx) error { return tokens.RevokeAllForUserTx(ctx, tx, id, t0) }))
	_, err = tokens.ConsumeRefresh(ctx, "r3", t0)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRefreshTokenConsumedOnceUnderConcurrency(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	tokens := NewTokenRepo(db)
	id := newUser(t, db, "a@example.com")
	require.NoError(t, tokens.StoreRefresh(ctx, id, "hot", t0.Add(time.Hour), t0))

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tokens.ConsumeRefresh(ctx, "hot", t0)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrConflict)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestLettersPurchaseOnce(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	usage := NewUsageRepo(db)
	alice := newUser(t, db, "alice@example.com")
	bob := newUser(t, db, "bob@example.com")

	l := model.DisputeLetter{UserID: alice, Bureau: "Equifax", ErrorDescription: "late payment", Status: model.LetterDraft, CreatedAt: t0}
	require.NoError(t, usage.CreateLetter(ctx, &l))

	_, err := usage.GetLetter(ctx, bob, l.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	purchase := func(uid uint64) error {
		return WithTx(ctx, db, func(tx *sql.Tx) error { return usage.MarkPurchasedTx(ctx, tx, uid, l.ID) })
	}
	assert.ErrorIs(t, purchase(bob), ErrNotFound)
	require.NoError(t, purchase(alice))
	assert.ErrorIs(t, purchase(alice), ErrConflict)

	got, err := usage.GetLetter(ctx, alice, l.ID)
	require.NoError(t, err)
	assert.True(t, got.Purchased)
	assert.Equal(t, model.LetterReady, got.Status)

	list, err := usage.ListLetters(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAnalysesAndTotals(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	usage := NewUsageRepo(db)
	id := newUser(t, db, "a@example.com")

	for i, n := range []int{3, 4} {
		a := model.AnalysisRecord{UserID: id, ReportName: "report.pdf", ErrorsFound: n, AnalyzedAt: t0.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, WithTx(ctx, db, func(tx *sql.Tx) error { return usage.InsertAnalysisTx(ctx, tx, &a) }))
	}
	list, err := usage.ListAnalyses(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 4, list[0].ErrorsFound)

	totals, err := usage.Totals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, UsageTotals{Analyses: 2, ErrorsFound: 7}, totals)
}

func TestCheckoutClaimedOnce(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	checkouts := NewCheckoutRepo(db)
	id := newUser(t, db, "a@example.com")

	c := model.ProcessedCheckout{SessionID: "cs_1", UserID: id, Plan: model.PlanBasic, ProcessedAt: t0}
	require.NoError(t, WithTx(ctx, db, func(tx *sql.Tx) error { return checkouts.InsertTx(ctx, tx, c) }))
	err := WithTx(ctx, db, func(tx *sql.Tx) error { return checkouts.InsertTx(ctx, tx, c) })
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := checkouts.Get(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, model.PlanBasic, got.Plan)
}
