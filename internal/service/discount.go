package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/credit-cpr/internal/metrics"
	"github.com/iliyamo/credit-cpr/internal/model"
	"github.com/iliyamo/credit-cpr/internal/repository"
)

// Messages returned by Redeem failures.
const (
	MsgCodeInvalid   = "Invalid code"
	MsgCodeExpired   = "Code expired"
	MsgCodeExhausted = "Code has been fully used"
)

// Discounts creates and redeems promotional codes and performs admin
// grants.  Every plan effect goes through Ledger.SetPlanTx.
type Discounts struct {
	DB      *sql.DB
	Users   *repository.UserRepo
	Codes   *repository.DiscountRepo
	Ledger  *Ledger
	Metrics *metrics.Collector
	Now     Clock
}

func NewDiscounts(db *sql.DB, ledger *Ledger, m *metrics.Collector) *Discounts {
	return &Discounts{
		DB:      db,
		Users:   repository.NewUserRepo(db),
		Codes:   repository.NewDiscountRepo(db),
		Ledger:  ledger,
		Metrics: m,
	}
}

// NewCode is the input to CreateCode.  Nil fields are unset.
type NewCode struct {
	Code            string
	DiscountPercent *int
	PlanOverride    *model.Plan
	MaxUses         *int
	ValidDays       *int
}

// CreateCode stores a code upper-cased.  An existing code yields
// ErrDuplicate.
func (d *Discounts) CreateCode(ctx context.Context, in NewCode) (model.DiscountCode, error) {
	code := repository.NormalizeCode(in.Code)
	switch {
	case code == "":
		return model.DiscountCode{}, invalid("code is required")
	case in.DiscountPercent == nil && in.PlanOverride == nil:
		return model.DiscountCode{}, invalid("a discount percent or a plan override is required")
	case in.DiscountPercent != nil && (*in.DiscountPercent < 1 || *in.DiscountPercent > 100):
		return model.DiscountCode{}, invalid("discount percent must be between 1 and 100")
	case in.MaxUses != nil && *in.MaxUses < 1:
		return model.DiscountCode{}, invalid("max uses must be positive")
	case in.ValidDays != nil && *in.ValidDays < 1:
		return model.DiscountCode{}, invalid("valid days must be positive")
	}
	if in.PlanOverride != nil {
		if _, ok := model.ParsePlan(string(*in.PlanOverride)); !ok {
			return model.DiscountCode{}, invalid(fmt.Sprintf("unknown plan %q", *in.PlanOverride))
		}
	}

	now := d.Now.now()
	dc := model.DiscountCode{
		Code:            code,
		DiscountPercent: in.DiscountPercent,
		PlanOverride:    in.PlanOverride,
		UsesRemaining:   in.MaxUses,
		CreatedAt:       now,
	}
	if in.ValidDays != nil {
		exp := now.Add(time.Duration(*in.ValidDays) * 24 * time.Hour)
		dc.ExpiresAt = &exp
	}
	if err := d.Codes.Create(ctx, &dc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.DiscountCode{}, ErrDuplicate
		}
		return model.DiscountCode{}, err
	}
	return dc, nil
}

// Redemption is the outcome of a successful Redeem.
type Redemption struct {
	Message string      `json:"message"`
	Plan    *model.Plan `json:"plan,omitempty"`
}

// Redeem applies code for userID.  Checks run in order: the code exists,
// has not expired, and has uses left.  The use is taken with a guarded
// decrement in the same transaction as the plan change, so a limited code
// is never redeemed more times than it allows.
func (d *Discounts) Redeem(ctx context.Context, userID uint64, code string) (Redemption, error) {
	var (
		out     Redemption
		changed *PlanChanged
	)
	now := d.Now.now()
	err := repository.WithTx(ctx, d.DB, func(tx *sql.Tx) error {
		dc, err := d.Codes.GetByCodeTx(ctx, tx, code)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if dc.ExpiresAt != nil && dc.ExpiresAt.Before(now) {
			return ErrExpired
		}
		if dc.UsesRemaining != nil && *dc.UsesRemaining <= 0 {
			return ErrExhausted
		}
		if err := d.Codes.ConsumeTx(ctx, tx, dc.ID); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrExhausted
			}
			return err
		}
		if dc.PlanOverride == nil {
			pct := 0
			if dc.DiscountPercent != nil {
				pct = *dc.DiscountPercent
			}
			out = Redemption{Message: fmt.Sprintf("%d%% discount applied", pct)}
			return nil
		}
		pc, err := d.Ledger.SetPlanTx(ctx, tx, PlanChange{
			UserID: userID,
			Plan:   *dc.PlanOverride,
			Actor:  ActorSystem,
			Reason: "Discount code " + dc.Code,
			Source: "discount",
		})
		if err != nil {
			return err
		}
		changed = &pc
		plan := *dc.PlanOverride
		out = Redemption{Message: fmt.Sprintf("Applied! You now have %s access", plan), Plan: &plan}
		return nil
	})
	if err != nil {
		d.Metrics.Redemption(redemptionResult(err))
		return Redemption{}, err
	}
	if changed != nil {
		d.Ledger.Announce(ctx, *changed)
	}
	d.Metrics.Redemption("ok")
	return out, nil
}

func redemptionResult(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "invalid"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrExhausted):
		return "exhausted"
	}
	return "error"
}

// RedeemMessage maps a Redeem error to the text shown to the user.
func RedeemMessage(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return MsgCodeExpired
	case errors.Is(err, ErrExhausted):
		return MsgCodeExhausted
	}
	return MsgCodeInvalid
}

// Grant is an admin's direct plan grant.
type Grant struct {
	Email        string
	Plan         model.Plan
	DurationDays *int
	Reason       string
	Actor        string
}

// GrantAccess resolves the email and sets the plan, with an optional
// expiry of now + DurationDays recorded on the override.
func (d *Discounts) GrantAccess(ctx context.Context, g Grant) (string, error) {
	if _, ok := model.ParsePlan(string(g.Plan)); !ok {
		return "", invalid(fmt.Sprintf("unknown plan %q", g.Plan))
	}
	if g.DurationDays != nil && *g.DurationDays < 1 {
		return "", invalid("duration days must be positive")
	}
	u, err := d.Users.GetByEmail(ctx, g.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	ch := PlanChange{
		UserID: u.ID,
		Plan:   g.Plan,
		Actor:  strings.TrimSpace(g.Actor),
		Reason: g.Reason,
		Source: "admin",
	}
	if g.DurationDays != nil {
		exp := d.Now.now().Add(time.Duration(*g.DurationDays) * 24 * time.Hour)
		ch.ExpiresAt = &exp
	}
	if _, err := d.Ledger.SetPlan(ctx, ch); err != nil {
		return "", err
	}
	return fmt.Sprintf("Granted %s access to %s", g.Plan, u.Email), nil
}
