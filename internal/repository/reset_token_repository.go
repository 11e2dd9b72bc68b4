package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/credit-cpr/internal/model"
)

// ResetTokenRepo persists password reset tokens by SHA-256 hash.
type ResetTokenRepo struct{ DB *sql.DB }

func NewResetTokenRepo(db *sql.DB) *ResetTokenRepo { return &ResetTokenRepo{DB: db} }

// Create stores a new unused token.
func (r *ResetTokenRepo) Create(ctx context.Context, userID uint64, tokenHash string, exp, now time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, used, created_at) VALUES (?,?,?,?,?)",
		userID, tokenHash, FormatTime(exp), false, FormatTime(now))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByHash returns the token row regardless of its state.
func (r *ResetTokenRepo) GetByHash(ctx context.Context, tokenHash string) (model.PasswordResetToken, error) {
	var (
		t                    model.PasswordResetToken
		expiresAt, createdAt string
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,token_hash,expires_at,used,created_at FROM password_reset_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &t.Used, &createdAt)
	if err != nil {
		return model.PasswordResetToken{}, notFound(err)
	}
	if t.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return model.PasswordResetToken{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.PasswordResetToken{}, err
	}
	return t, nil
}

// MarkUsedTx flips used from false to true if the token is still unused
// and unexpired at now.  A second caller gets ErrConflict.
func (r *ResetTokenRepo) MarkUsedTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE password_reset_tokens SET used=? WHERE id=? AND used=? AND expires_at > ?",
		true, id, false, FormatTime(now))
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
