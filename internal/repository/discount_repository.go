package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/credit-cpr/internal/model"
)

// DiscountRepo stores discount codes.  Codes are kept upper-cased and
// matched case-insensitively by upper-casing the lookup key.
type DiscountRepo struct{ DB *sql.DB }

func NewDiscountRepo(db *sql.DB) *DiscountRepo { return &DiscountRepo{DB: db} }

const discountColumns = "id,code,discount_percent,plan_override,uses_remaining,expires_at,created_at"

// NormalizeCode trims and upper-cases a code.
func NormalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

// Create inserts d and sets its ID.  An existing code yields ErrDuplicate.
func (r *DiscountRepo) Create(ctx context.Context, d *model.DiscountCode) error {
	d.Code = NormalizeCode(d.Code)
	var plan sql.NullString
	if d.PlanOverride != nil {
		plan = sql.NullString{String: string(*d.PlanOverride), Valid: true}
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO discount_codes (code, discount_percent, plan_override, uses_remaining, expires_at, created_at) VALUES (?,?,?,?,?,?)",
		d.Code, nullInt(d.DiscountPercent), plan, nullInt(d.UsesRemaining), formatNullTime(d.ExpiresAt), FormatTime(d.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	return nil
}

// GetByCode looks a code up case-insensitively.
func (r *DiscountRepo) GetByCode(ctx context.Context, code string) (model.DiscountCode, error) {
	return r.getByCode(ctx, r.DB, code)
}

// GetByCodeTx is GetByCode inside tx.
func (r *DiscountRepo) GetByCodeTx(ctx context.Context, tx *sql.Tx, code string) (model.DiscountCode, error) {
	return r.getByCode(ctx, tx, code)
}

func (r *DiscountRepo) getByCode(ctx context.Context, q querier, code string) (model.DiscountCode, error) {
	var (
		d         model.DiscountCode
		percent   sql.NullInt64
		plan      sql.NullString
		uses      sql.NullInt64
		expiresAt sql.NullString
		createdAt string
	)
	err := q.QueryRowContext(ctx,
		"SELECT "+discountColumns+" FROM discount_codes WHERE code=? LIMIT 1", NormalizeCode(code)).
		Scan(&d.ID, &d.Code, &percent, &plan, &uses, &expiresAt, &createdAt)
	if err != nil {
		return model.DiscountCode{}, notFound(err)
	}
	d.DiscountPercent = intPtr(percent)
	d.UsesRemaining = intPtr(uses)
	if plan.Valid {
		p := model.Plan(plan.String)
		d.PlanOverride = &p
	}
	if d.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return model.DiscountCode{}, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.DiscountCode{}, err
	}
	return d, nil
}

// ConsumeTx takes one use of the code.  Unbounded codes (NULL
// uses_remaining) always succeed; bounded codes are decremented only while
// positive.  It returns ErrConflict when no use was left, which is how a
// concurrent redemption of the last use loses.
func (r *DiscountRepo) ConsumeTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE discount_codes
		    SET uses_remaining = CASE WHEN uses_remaining IS NULL THEN NULL ELSE uses_remaining - 1 END
		  WHERE id = ? AND (uses_remaining IS NULL OR uses_remaining > 0)`, id)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}
