package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/credit-cpr/internal/model"
)

// OverrideRepo appends to and reads the user_overrides audit trail.  Rows
// are never updated or deleted.
type OverrideRepo struct{ DB *sql.DB }

func NewOverrideRepo(db *sql.DB) *OverrideRepo { return &OverrideRepo{DB: db} }

const overrideColumns = "id,user_id,override_type,reason,granted_by,expires_at,created_at"

// InsertTx appends o and sets its ID.
func (r *OverrideRepo) InsertTx(ctx context.Context, tx *sql.Tx, o *model.EntitlementOverride) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO user_overrides (user_id, override_type, reason, granted_by, expires_at, created_at) VALUES (?,?,?,?,?,?)",
		o.UserID, o.Type, o.Reason, o.GrantedBy, formatNullTime(o.ExpiresAt), FormatTime(o.CreatedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	return nil
}

// Latest returns the most recent override for a user.
func (r *OverrideRepo) Latest(ctx context.Context, userID uint64) (model.EntitlementOverride, error) {
	return scanOverride(r.DB.QueryRowContext(ctx,
		"SELECT "+overrideColumns+" FROM user_overrides WHERE user_id=? ORDER BY id DESC LIMIT 1", userID))
}

// ListByUser returns every override for a user, newest first.
func (r *OverrideRepo) ListByUser(ctx context.Context, userID uint64) ([]model.EntitlementOverride, error) {
	return r.list(ctx, r.DB, userID)
}

// ListByUserTx is ListByUser inside tx.
func (r *OverrideRepo) ListByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) ([]model.EntitlementOverride, error) {
	return r.list(ctx, tx, userID)
}

func (r *OverrideRepo) list(ctx context.Context, q querier, userID uint64) ([]model.EntitlementOverride, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+overrideColumns+" FROM user_overrides WHERE user_id=? ORDER BY id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.EntitlementOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOverride(row rowScanner) (model.EntitlementOverride, error) {
	var (
		o         model.EntitlementOverride
		expiresAt sql.NullString
		createdAt string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Type, &o.Reason, &o.GrantedBy, &expiresAt, &createdAt); err != nil {
		return model.EntitlementOverride{}, notFound(err)
	}
	var err error
	if o.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return model.EntitlementOverride{}, err
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.EntitlementOverride{}, err
	}
	return o, nil
}
