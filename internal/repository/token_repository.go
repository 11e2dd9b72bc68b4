package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo persists/validates refresh tokens (single 'token_hash' column).
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp, now time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?)",
		userID, tokenHash, FormatTime(exp), FormatTime(now))
	return err
}

// ConsumeRefresh revokes a live token and returns its owner.  A token
// can be consumed once: concurrent or repeated calls get ErrConflict, as
// do expired and unknown tokens.
func (r *TokenRepo) ConsumeRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error) {
	if err := r.RevokeByHash(ctx, tokenHash, now); err != nil {
		return 0, err
	}
	var userID uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id FROM refresh_tokens WHERE token_hash=? LIMIT 1", tokenHash).Scan(&userID)
	if err != nil {
		return 0, notFound(err)
	}
	return userID, nil
}

// RevokeByHash marks a live token as revoked.  It returns ErrConflict
// when the token is unknown, expired or already revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string, now time.Time) error {
	ts := FormatTime(now)
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL AND expires_at > ?",
		ts, tokenHash, ts)
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

// RevokeAllForUserTx revokes all user's active tokens.  A password reset
// calls it so every existing session ends with the old password.
func (r *TokenRepo) RevokeAllForUserTx(ctx context.Context, tx *sql.Tx, userID uint64, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		FormatTime(now), userID)
	return err
}

// RevokeAllForUser ends every active session of a user.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64, now time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		FormatTime(now), userID)
	return err
}
