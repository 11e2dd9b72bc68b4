package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/credit-cpr/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,plan,reports_analyzed,disputes_purchased,is_admin,stripe_customer_id,created_at"

// NormalizeEmail lower-cases and trims an address.  Every write and lookup
// goes through it so that "Bob@X.com" and "bob@x.com" are one account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a user on the free plan and returns its ID.  A second
// account for the same email yields ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash string, now time.Time) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, plan, created_at) VALUES (?,?,?,?)",
		NormalizeEmail(email), passwordHash, string(model.PlanFree), FormatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.getByID(ctx, r.DB, id)
}

// GetByIDTx is GetByID inside tx.
func (r *UserRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.User, error) {
	return r.getByID(ctx, tx, id)
}

func (r *UserRepo) getByID(ctx context.Context, q querier, id uint64) (model.User, error) {
	return scanUser(q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByStripeCustomer finds the user linked to a payment processor
// customer id.
func (r *UserRepo) GetByStripeCustomer(ctx context.Context, customerID string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE stripe_customer_id=? LIMIT 1", customerID))
}

// UpdatePasswordTx replaces the stored hash.
func (r *UserRepo) UpdatePasswordTx(ctx context.Context, tx *sql.Tx, id uint64, passwordHash string) error {
	res, err := tx.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", passwordHash, id)
	return expectOne(res, err)
}

// SetPlanTx writes users.plan.  Callers must record the matching override
// row in the same transaction; see service.Ledger.SetPlanTx.
func (r *UserRepo) SetPlanTx(ctx context.Context, tx *sql.Tx, id uint64, plan model.Plan) error {
	res, err := tx.ExecContext(ctx, "UPDATE users SET plan=? WHERE id=?", string(plan), id)
	return expectOne(res, err)
}

// IncrementReportsTx bumps reports_analyzed by one.
func (r *UserRepo) IncrementReportsTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, "UPDATE users SET reports_analyzed = reports_analyzed + 1 WHERE id=?", id)
	return expectOne(res, err)
}

// IncrementReportsWithinTx bumps reports_analyzed by one unless the user
// is on the free plan and has already used freeLimit analyses.  The check
// and the increment are one statement, so concurrent callers cannot both
// take the last free analysis.  It returns ErrConflict when the quota is
// used up and ErrNotFound for an unknown user.
func (r *UserRepo) IncrementReportsWithinTx(ctx context.Context, tx *sql.Tx, id uint64, freeLimit int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET reports_analyzed = reports_analyzed + 1 WHERE id=? AND (plan <> ? OR reports_analyzed < ?)",
		id, string(model.PlanFree), freeLimit)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=?", id).Scan(&exists); err != nil {
		return notFound(err)
	}
	return ErrConflict
}

// IncrementDisputesTx bumps disputes_purchased by one.
func (r *UserRepo) IncrementDisputesTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, "UPDATE users SET disputes_purchased = disputes_purchased + 1 WHERE id=?", id)
	return expectOne(res, err)
}

// SetStripeCustomerTx links the user to a payment processor customer.
func (r *UserRepo) SetStripeCustomerTx(ctx context.Context, tx *sql.Tx, id uint64, customerID string) error {
	res, err := tx.ExecContext(ctx, "UPDATE users SET stripe_customer_id=? WHERE id=?", customerID, id)
	return expectOne(res, err)
}

// SetAdmin flips the is_admin flag.
func (r *UserRepo) SetAdmin(ctx context.Context, id uint64, admin bool) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET is_admin=? WHERE id=?", admin, id)
	return expectOne(res, err)
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u         model.User
		plan      string
		customer  sql.NullString
		createdAt string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &plan, &u.ReportsAnalyzed,
		&u.DisputesPurchased, &u.IsAdmin, &customer, &createdAt)
	if err != nil {
		return model.User{}, notFound(err)
	}
	u.Plan = model.Plan(plan)
	if customer.Valid {
		c := customer.String
		u.StripeCustomerID = &c
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.User{}, err
	}
	return u, nil
}
