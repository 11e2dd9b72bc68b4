package service

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"time"

	"github.com/iliyamo/credit-cpr/internal/metrics"
	"github.com/iliyamo/credit-cpr/internal/queue"
	"github.com/iliyamo/credit-cpr/internal/repository"
	"github.com/iliyamo/credit-cpr/internal/utils"
)

// ResetTokenTTL is how long an emailed reset link stays valid.
const ResetTokenTTL = time.Hour

// Messages shown for unusable reset links.
const (
	MsgResetInvalid = "Invalid reset token"
	MsgResetUsed    = "This reset link has already been used"
	MsgResetExpired = "This reset link has expired"
)

// Reset issues and redeems single-use password reset tokens.
type Reset struct {
	DB      *sql.DB
	Users   *repository.UserRepo
	Tokens  *repository.ResetTokenRepo
	Refresh *repository.TokenRepo
	Events  Publisher
	Metrics *metrics.Collector
	BaseURL string // reset links point here with ?reset_token=
	Now     Clock
}

func NewReset(db *sql.DB, events Publisher, m *metrics.Collector, baseURL string) *Reset {
	return &Reset{
		DB:      db,
		Users:   repository.NewUserRepo(db),
		Tokens:  repository.NewResetTokenRepo(db),
		Refresh: repository.NewTokenRepo(db),
		Events:  events,
		Metrics: m,
		BaseURL: baseURL,
	}
}

// Issue creates a token for the account with email.  It returns
// ErrNotFound for unknown addresses; callers facing end users must not
// reveal that.
func (r *Reset) Issue(ctx context.Context, email string) (utils.ResetToken, uint64, error) {
	u, err := r.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return utils.ResetToken{}, 0, ErrNotFound
	}
	if err != nil {
		return utils.ResetToken{}, 0, err
	}
	now := r.Now.now()
	tok, err := utils.NewResetToken(now, ResetTokenTTL)
	if err != nil {
		return utils.ResetToken{}, 0, err
	}
	if err := r.Tokens.Create(ctx, u.ID, utils.HashToken(tok.Raw), tok.Exp, now); err != nil {
		return utils.ResetToken{}, 0, err
	}
	r.Metrics.ResetToken("issued")
	return tok, u.ID, nil
}

// Link builds the URL mailed to the user.
func (r *Reset) Link(raw string) string {
	return r.BaseURL + "/?reset_token=" + url.QueryEscape(raw)
}

// RequestReset issues a token and queues the reset mail.  Unknown emails
// are silently ignored so the caller can always answer the same way.
func (r *Reset) RequestReset(ctx context.Context, email string) error {
	tok, userID, err := r.Issue(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	publish(ctx, r.Events, queue.PasswordResetQueue, queue.PasswordResetMailEvent{
		UserID:    userID,
		Email:     repository.NormalizeEmail(email),
		ResetURL:  r.Link(tok.Raw),
		ExpiresAt: repository.FormatTime(tok.Exp),
	})
	return nil
}

// Verify returns the user id bound to raw without changing anything.  It
// fails with ErrNotFound, ErrAlreadyUsed or ErrExpired.
func (r *Reset) Verify(ctx context.Context, raw string) (uint64, error) {
	if raw == "" {
		return 0, ErrNotFound
	}
	t, err := r.Tokens.GetByHash(ctx, utils.HashToken(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if t.Used {
		return 0, ErrAlreadyUsed
	}
	if !r.Now.now().Before(t.ExpiresAt) {
		return 0, ErrExpired
	}
	return t.UserID, nil
}

// Redeem sets a new password using raw.  The used flag, the password hash
// and the revocation of existing refresh tokens commit together; a second
// redemption fails with ErrAlreadyUsed.
func (r *Reset) Redeem(ctx context.Context, raw, newPassword string) error {
	if _, err := r.Verify(ctx, raw); err != nil {
		r.Metrics.ResetToken("rejected")
		return err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	t, err := r.Tokens.GetByHash(ctx, utils.HashToken(raw))
	if err != nil {
		return err
	}

	now := r.Now.now()
	err = repository.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := r.Tokens.MarkUsedTx(ctx, tx, t.ID, now); err != nil {
			return err
		}
		if err := r.Users.UpdatePasswordTx(ctx, tx, t.UserID, hash); err != nil {
			return err
		}
		return r.Refresh.RevokeAllForUserTx(ctx, tx, t.UserID, now)
	})
	if errors.Is(err, repository.ErrConflict) {
		// lost a race with another redemption, or expired since Verify
		r.Metrics.ResetToken("rejected")
		if _, verr := r.Verify(ctx, raw); verr != nil {
			return verr
		}
		return ErrAlreadyUsed
	}
	if err != nil {
		return err
	}
	r.Metrics.ResetToken("redeemed")
	return nil
}

// ResetMessage maps a Verify/Redeem error to the text shown to the user.
func ResetMessage(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyUsed):
		return MsgResetUsed
	case errors.Is(err, ErrExpired):
		return MsgResetExpired
	}
	return MsgResetInvalid
}
