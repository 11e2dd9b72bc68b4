package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/credit-cpr/internal/model"
)

// CheckoutRepo records checkout sessions that have already changed a
// plan.  The session id primary key makes reconciliation idempotent.
type CheckoutRepo struct{ DB *sql.DB }

func NewCheckoutRepo(db *sql.DB) *CheckoutRepo { return &CheckoutRepo{DB: db} }

// InsertTx claims a session id.  A session that was already processed
// yields ErrDuplicate and the caller must roll back.
func (r *CheckoutRepo) InsertTx(ctx context.Context, tx *sql.Tx, c model.ProcessedCheckout) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO processed_checkouts (session_id, user_id, plan, processed_at) VALUES (?,?,?,?)",
		c.SessionID, c.UserID, string(c.Plan), FormatTime(c.ProcessedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Get returns a processed checkout by session id.
func (r *CheckoutRepo) Get(ctx context.Context, sessionID string) (model.ProcessedCheckout, error) {
	var (
		c    model.ProcessedCheckout
		plan string
		at   string
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT session_id,user_id,plan,processed_at FROM processed_checkouts WHERE session_id=? LIMIT 1", sessionID).
		Scan(&c.SessionID, &c.UserID, &plan, &at)
	if err != nil {
		return model.ProcessedCheckout{}, notFound(err)
	}
	c.Plan = model.Plan(plan)
	if c.ProcessedAt, err = parseTime(at); err != nil {
		return model.ProcessedCheckout{}, err
	}
	return c, nil
}
