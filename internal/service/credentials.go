package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/iliyamo/credit-cpr/internal/metrics"
	"github.com/iliyamo/credit-cpr/internal/model"
	"github.com/iliyamo/credit-cpr/internal/repository"
	"github.com/iliyamo/credit-cpr/internal/utils"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 8

// Credentials owns account creation and password verification.
type Credentials struct {
	Users   *repository.UserRepo
	Metrics *metrics.Collector
	Now     Clock
}

func NewCredentials(users *repository.UserRepo, m *metrics.Collector) *Credentials {
	return &Credentials{Users: users, Metrics: m}
}

// ValidateSignup checks a signup form.  confirm is compared only when the
// client sent one.
func ValidateSignup(email, password, confirm string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	if confirm != "" && confirm != password {
		return invalid("Passwords don't match")
	}
	return nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return invalid(fmt.Sprintf("Password must be at least %d characters", MinPasswordLen))
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return invalid("Please enter a valid email")
	}
	return nil
}

// CreateAccount stores a new free-plan user with a salted PBKDF2 hash.
func (s *Credentials) CreateAccount(ctx context.Context, email, password string) (uint64, error) {
	if err := validateEmail(email); err != nil {
		return 0, err
	}
	if err := ValidatePassword(password); err != nil {
		return 0, err
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return 0, err
	}
	id, err := s.Users.Create(ctx, email, hash, s.Now.now())
	if errors.Is(err, repository.ErrDuplicate) {
		s.Metrics.Auth("signup", "duplicate")
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, err
	}
	s.Metrics.Auth("signup", "ok")
	return id, nil
}

// Authenticate checks email and password.  Unknown emails and wrong
// passwords both yield ErrInvalidCredentials after the same hashing work.
func (s *Credentials) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	u, err := s.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		utils.DummyVerify(password)
		s.Metrics.Auth("password", "invalid")
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		s.Metrics.Auth("password", "invalid")
		return model.User{}, ErrInvalidCredentials
	}
	s.Metrics.Auth("password", "ok")
	return u, nil
}

// ProvisionFromIdentity returns the user with email, creating a free-plan
// account with an unusable random password on first sign-in.  displayName
// is not stored.
func (s *Credentials) ProvisionFromIdentity(ctx context.Context, email, displayName string) (model.User, error) {
	if err := validateEmail(email); err != nil {
		return model.User{}, err
	}
	u, err := s.Users.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, err
	}

	pw, err := utils.RandomPassword()
	if err != nil {
		return model.User{}, err
	}
	hash, err := utils.HashPassword(pw)
	if err != nil {
		return model.User{}, err
	}
	id, err := s.Users.Create(ctx, email, hash, s.Now.now())
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		// lost a race with a concurrent first sign-in
		return s.Users.GetByEmail(ctx, email)
	case err != nil:
		return model.User{}, err
	}
	return s.Users.GetByID(ctx, id)
}

// SearchUsers pages through accounts for the admin back office, newest
// first.  An unknown plan filter is rejected.
func (s *Credentials) SearchUsers(ctx context.Context, q repository.UserSearchQuery) ([]model.User, int64, error) {
	if q.Plan != "" {
		p, ok := model.ParsePlan(string(q.Plan))
		if !ok {
			return nil, 0, invalid("unknown plan filter")
		}
		q.Plan = p
	}
	return s.Users.Search(ctx, q)
}

// SetAdmin grants or revokes the admin flag of a user on behalf of actor.
// An admin cannot revoke their own flag.  Every change is logged.
func (s *Credentials) SetAdmin(ctx context.Context, actor model.User, userID uint64, admin bool) (model.User, error) {
	if actor.ID == userID && !admin {
		return model.User{}, invalid("You cannot remove your own admin access")
	}
	err := s.Users.SetAdmin(ctx, userID, admin)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	log.Printf("admin: %s set is_admin=%t on user %d", actor.Email, admin, userID)
	return s.Users.GetByID(ctx, userID)
}
