package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/iliyamo/credit-cpr/internal/metrics"
	"github.com/iliyamo/credit-cpr/internal/model"
	"github.com/iliyamo/credit-cpr/internal/queue"
	"github.com/iliyamo/credit-cpr/internal/repository"
)

// FreeReportLimit is how many analyses a free account may run.
const FreeReportLimit = 1

// QuotaMessage is the denial reason for a free account over its limit.
const QuotaMessage = "Free tier limit reached (1 report). Upgrade for unlimited analyses."

// Action is a gated product operation.
type Action string

const (
	ActionAnalyzeReport  Action = "analyze_report"
	ActionDownloadLetter Action = "download_letter"
)

// Decision is the answer to "may this user do X".
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Actors recorded on overrides that were not made by an admin.
const (
	ActorSystem = "system"
	ActorStripe = "stripe"
)

// PlanChange describes one call to SetPlan.  Source only labels metrics
// ("admin", "discount", "stripe", "system").
type PlanChange struct {
	UserID    uint64
	Plan      model.Plan
	Actor     string
	ExpiresAt *time.Time
	Reason    string
	Source    string
}

// PlanChanged is what SetPlanTx did.  Pass it to Announce once the
// transaction has committed.
type PlanChanged struct {
	User     model.User
	From     model.Plan
	Override model.EntitlementOverride
	Source   string
}

// Ledger is the single writer of users.plan and the usage counters.
type Ledger struct {
	DB          *sql.DB
	Users       *repository.UserRepo
	Overrides   *repository.OverrideRepo
	Usage       *repository.UsageRepo
	Events      Publisher
	Metrics     *metrics.Collector
	AdminEmails []string
	Now         Clock
}

func NewLedger(db *sql.DB, events Publisher, m *metrics.Collector, adminEmails []string) *Ledger {
	return &Ledger{
		DB:          db,
		Users:       repository.NewUserRepo(db),
		Overrides:   repository.NewOverrideRepo(db),
		Usage:       repository.NewUsageRepo(db),
		Events:      events,
		Metrics:     m,
		AdminEmails: adminEmails,
	}
}

// IsAdmin reports whether u carries the admin flag or appears in the
// configured allow-list.  The comparison ignores case.
func (l *Ledger) IsAdmin(u model.User) bool {
	return u.IsAdmin || slices.Contains(l.AdminEmails, repository.NormalizeEmail(u.Email))
}

// CurrentUser loads a user and, when the grant behind the current plan
// has expired, restores the plan that was in force before it (free when
// there is none) before returning it.
func (l *Ledger) CurrentUser(ctx context.Context, userID uint64) (model.User, error) {
	u, err := l.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if u.Plan == model.PlanFree {
		return u, nil
	}
	latest, err := l.Overrides.Latest(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return u, nil
	}
	if err != nil {
		return model.User{}, err
	}
	if !grantExpired(u, latest, l.Now.now()) {
		return u, nil
	}
	return l.expire(ctx, userID)
}

// grantExpired reports whether the override that produced u's plan has
// run out.  Later plan changes write newer overrides, so only the latest
// one is considered.
func grantExpired(u model.User, latest model.EntitlementOverride, now time.Time) bool {
	return latest.Type == u.Plan.OverrideType() &&
		latest.ExpiresAt != nil &&
		!latest.ExpiresAt.After(now)
}

func (l *Ledger) expire(ctx context.Context, userID uint64) (model.User, error) {
	var (
		changed *PlanChanged
		user    model.User
	)
	err := repository.WithTx(ctx, l.DB, func(tx *sql.Tx) error {
		u, err := l.Users.GetByIDTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		history, err := l.Overrides.ListByUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		user = u
		now := l.Now.now()
		if len(history) == 0 || !grantExpired(u, history[0], now) {
			return nil // another request already reverted it
		}
		plan, until := fallbackPlan(history[1:], now)
		pc, err := l.SetPlanTx(ctx, tx, PlanChange{
			UserID:    userID,
			Plan:      plan,
			Actor:     ActorSystem,
			ExpiresAt: until,
			Reason:    fmt.Sprintf("%s grant expired", u.Plan),
			Source:    "expiry",
		})
		if err != nil {
			return err
		}
		changed, user = &pc, pc.User
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	if changed != nil {
		l.Announce(ctx, *changed)
	}
	return user, nil
}

// fallbackPlan walks older overrides, newest first, and returns the first
// one still in force along with its own expiry.  A grant stacked on a
// subscription therefore hands the account back to that subscription.
func fallbackPlan(older []model.EntitlementOverride, now time.Time) (model.Plan, *time.Time) {
	for _, o := range older {
		p, ok := model.PlanFromOverride(o.Type)
		if !ok {
			continue
		}
		if o.ExpiresAt != nil && !o.ExpiresAt.After(now) {
			continue
		}
		return p, o.ExpiresAt
	}
	return model.PlanFree, nil
}

// AnalyzeDecision is the pure entitlement rule for report analysis: paid
// plans and admins are unlimited, free accounts get FreeReportLimit.
func AnalyzeDecision(u model.User, admin bool) Decision {
	if admin || u.Plan.Paid() {
		return Decision{Allowed: true, Reason: "Unlimited analyses"}
	}
	if u.ReportsAnalyzed >= FreeReportLimit {
		return Decision{Allowed: false, Reason: QuotaMessage}
	}
	return Decision{Allowed: true, Reason: fmt.Sprintf("You have %d analysis remaining", FreeReportLimit-u.ReportsAnalyzed)}
}

// CanPerform answers whether the user may run action now.
func (l *Ledger) CanPerform(ctx context.Context, userID uint64, action Action) (Decision, error) {
	if action != ActionAnalyzeReport {
		return Decision{}, invalid("unknown action")
	}
	u, err := l.CurrentUser(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	return AnalyzeDecision(u, l.IsAdmin(u)), nil
}

// CanDownloadLetter allows paid plans and admins to download any of their
// letters, and free accounts to download letters they purchased.
func (l *Ledger) CanDownloadLetter(ctx context.Context, userID, letterID uint64) (Decision, model.DisputeLetter, error) {
	u, err := l.CurrentUser(ctx, userID)
	if err != nil {
		return Decision{}, model.DisputeLetter{}, err
	}
	letter, err := l.Usage.GetLetter(ctx, userID, letterID)
	if errors.Is(err, repository.ErrNotFound) {
		return Decision{}, model.DisputeLetter{}, ErrNotFound
	}
	if err != nil {
		return Decision{}, model.DisputeLetter{}, err
	}
	switch {
	case l.IsAdmin(u) || u.Plan.Paid():
		return Decision{Allowed: true, Reason: "Included in your plan"}, letter, nil
	case letter.Purchased:
		return Decision{Allowed: true, Reason: "Letter purchased"}, letter, nil
	}
	return Decision{Allowed: false, Reason: "Purchase this letter or upgrade to download it"}, letter, nil
}

// RecordAnalysis counts one analysis and appends it to the history in a
// single transaction.  The free-tier quota is enforced by the counter
// update itself, so a free account over its limit gets a DeniedError
// carrying QuotaMessage even when requests race.
func (l *Ledger) RecordAnalysis(ctx context.Context, userID uint64, reportName string, errorsFound int) (model.AnalysisRecord, error) {
	if errorsFound < 0 {
		return model.AnalysisRecord{}, invalid("errors_found must not be negative")
	}
	u, err := l.CurrentUser(ctx, userID)
	if err != nil {
		return model.AnalysisRecord{}, err
	}
	admin := l.IsAdmin(u)
	rec := model.AnalysisRecord{
		UserID:      userID,
		ReportName:  reportName,
		ErrorsFound: errorsFound,
		AnalyzedAt:  l.Now.now(),
	}
	err = repository.WithTx(ctx, l.DB, func(tx *sql.Tx) error {
		var err error
		if admin {
			err = l.Users.IncrementReportsTx(ctx, tx, userID)
		} else {
			err = l.Users.IncrementReportsWithinTx(ctx, tx, userID, FreeReportLimit)
		}
		if err != nil {
			return err
		}
		return l.Usage.InsertAnalysisTx(ctx, tx, &rec)
	})
	switch {
	case errors.Is(err, repository.ErrConflict):
		return model.AnalysisRecord{}, &DeniedError{Reason: QuotaMessage}
	case errors.Is(err, repository.ErrNotFound):
		return model.AnalysisRecord{}, ErrNotFound
	case err != nil:
		return model.AnalysisRecord{}, err
	}
	return rec, nil
}

// Analyses lists the most recent analyses of a user.
func (l *Ledger) Analyses(ctx context.Context, userID uint64, limit int) ([]model.AnalysisRecord, error) {
	return l.Usage.ListAnalyses(ctx, userID, limit)
}

// SaveLetter stores a draft dispute letter.
func (l *Ledger) SaveLetter(ctx context.Context, userID uint64, bureau, description string) (model.DisputeLetter, error) {
	if bureau == "" || description == "" {
		return model.DisputeLetter{}, invalid("bureau and error_description are required")
	}
	letter := model.DisputeLetter{
		UserID:           userID,
		Bureau:           bureau,
		ErrorDescription: description,
		Status:           model.LetterDraft,
		CreatedAt:        l.Now.now(),
	}
	if err := l.Usage.CreateLetter(ctx, &letter); err != nil {
		return model.DisputeLetter{}, err
	}
	return letter, nil
}

// Letters lists a user's saved letters.
func (l *Ledger) Letters(ctx context.Context, userID uint64) ([]model.DisputeLetter, error) {
	return l.Usage.ListLetters(ctx, userID)
}

// RecordDisputePurchase marks a draft letter purchased and counts it.  A
// letter is counted once; buying it again returns ErrAlreadyUsed.
func (l *Ledger) RecordDisputePurchase(ctx context.Context, userID, letterID uint64) error {
	err := repository.WithTx(ctx, l.DB, func(tx *sql.Tx) error {
		if err := l.Usage.MarkPurchasedTx(ctx, tx, userID, letterID); err != nil {
			return err
		}
		return l.Users.IncrementDisputesTx(ctx, tx, userID)
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrAlreadyUsed
	}
	return err
}

// SetPlan changes a user's plan and records the override in one
// transaction, then announces the change.
func (l *Ledger) SetPlan(ctx context.Context, ch PlanChange) (PlanChanged, error) {
	var pc PlanChanged
	err := repository.WithTx(ctx, l.DB, func(tx *sql.Tx) error {
		var err error
		pc, err = l.SetPlanTx(ctx, tx, ch)
		return err
	})
	if err != nil {
		return PlanChanged{}, err
	}
	l.Announce(ctx, pc)
	return pc, nil
}

// SetPlanTx is the only code path that writes users.plan.  It always pairs
// the update with one user_overrides row.  Callers composing it into a
// larger transaction must call Announce after commit.
func (l *Ledger) SetPlanTx(ctx context.Context, tx *sql.Tx, ch PlanChange) (PlanChanged, error) {
	if _, ok := model.ParsePlan(string(ch.Plan)); !ok {
		return PlanChanged{}, invalid(fmt.Sprintf("unknown plan %q", ch.Plan))
	}
	if ch.Actor == "" {
		return PlanChanged{}, invalid("actor is required")
	}
	u, err := l.Users.GetByIDTx(ctx, tx, ch.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return PlanChanged{}, ErrNotFound
	}
	if err != nil {
		return PlanChanged{}, err
	}
	if err := l.Users.SetPlanTx(ctx, tx, ch.UserID, ch.Plan); err != nil {
		return PlanChanged{}, err
	}
	o := model.EntitlementOverride{
		UserID:    ch.UserID,
		Type:      ch.Plan.OverrideType(),
		Reason:    ch.Reason,
		GrantedBy: ch.Actor,
		ExpiresAt: ch.ExpiresAt,
		CreatedAt: l.Now.now(),
	}
	if err := l.Overrides.InsertTx(ctx, tx, &o); err != nil {
		return PlanChanged{}, err
	}
	from := u.Plan
	u.Plan = ch.Plan
	return PlanChanged{User: u, From: from, Override: o, Source: ch.Source}, nil
}

// Announce counts and publishes a committed plan change.
func (l *Ledger) Announce(ctx context.Context, pc PlanChanged) {
	l.Metrics.PlanChanged(string(pc.User.Plan), pc.Source)
	ev := queue.PlanChangedEvent{
		UserID:    pc.User.ID,
		Email:     pc.User.Email,
		FromPlan:  string(pc.From),
		ToPlan:    string(pc.User.Plan),
		Actor:     pc.Override.GrantedBy,
		Reason:    pc.Override.Reason,
		ChangedAt: repository.FormatTime(pc.Override.CreatedAt),
	}
	if pc.Override.ExpiresAt != nil {
		ev.ExpiresAt = repository.FormatTime(*pc.Override.ExpiresAt)
	}
	publish(ctx, l.Events, queue.PlanChangedQueue, ev)
}

// OverrideHistory lists the audit trail for a user, newest first.
func (l *Ledger) OverrideHistory(ctx context.Context, userID uint64) ([]model.EntitlementOverride, error) {
	return l.Overrides.ListByUser(ctx, userID)
}

// Stats summarizes a user's plan and usage.
type Stats struct {
	Plan              model.Plan `json:"plan"`
	ReportsAnalyzed   int        `json:"reports_analyzed"`
	DisputesPurchased int        `json:"disputes_purchased"`
	TotalAnalyses     int        `json:"total_analyses"`
	TotalDisputes     int        `json:"total_disputes"`
	ErrorsFound       int        `json:"errors_found"`
	LettersSaved      int        `json:"letters_saved"`
	Analyze           Decision   `json:"analyze"`
}

// Stats loads the counters and history totals for a user.
func (l *Ledger) Stats(ctx context.Context, userID uint64) (Stats, error) {
	u, err := l.CurrentUser(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	totals, err := l.Usage.Totals(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Plan:              u.Plan,
		ReportsAnalyzed:   u.ReportsAnalyzed,
		DisputesPurchased: u.DisputesPurchased,
		TotalAnalyses:     totals.Analyses,
		TotalDisputes:     totals.PurchasedLetter,
		ErrorsFound:       totals.ErrorsFound,
		LettersSaved:      totals.Letters,
		Analyze:           AnalyzeDecision(u, l.IsAdmin(u)),
	}, nil
}
