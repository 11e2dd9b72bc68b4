package service

import (
	"context"

	"github.com/iliyamo/credit-cpr/internal/identity"
	"github.com/iliyamo/credit-cpr/internal/metrics"
	"github.com/iliyamo/credit-cpr/internal/model"
)

// OAuthLogin runs "Sign in with Google": a CSRF state is stored on the way
// out and consumed on the way back, and the email is only trusted after
// the provider exchange succeeded.
type OAuthLogin struct {
	Provider    identity.Provider
	States      identity.StateStore
	Credentials *Credentials
	Metrics     *metrics.Collector
}

func NewOAuthLogin(p identity.Provider, states identity.StateStore, creds *Credentials, m *metrics.Collector) *OAuthLogin {
	return &OAuthLogin{Provider: p, States: states, Credentials: creds, Metrics: m}
}

// Begin returns the provider consent URL.
func (o *OAuthLogin) Begin(ctx context.Context) (string, error) {
	state, err := identity.NewState()
	if err != nil {
		return "", err
	}
	if err := o.States.Save(ctx, state, identity.StateTTL); err != nil {
		return "", err
	}
	return o.Provider.AuthCodeURL(state), nil
}

// Complete validates state, exchanges code and resolves or provisions the
// local account.
func (o *OAuthLogin) Complete(ctx context.Context, code, state string) (model.User, error) {
	ok, err := o.States.Consume(ctx, state)
	if err != nil {
		return model.User{}, err
	}
	if !ok {
		o.Metrics.Auth("google", "bad_state")
		return model.User{}, invalid("invalid or expired state parameter")
	}
	if code == "" {
		return model.User{}, invalid("missing authorization code")
	}
	tok, err := o.Provider.ExchangeCodeForToken(ctx, code)
	if err != nil {
		o.Metrics.Auth("google", "provider_error")
		return model.User{}, providerErr("google token exchange", err)
	}
	prof, err := o.Provider.FetchProfile(ctx, tok)
	if err != nil {
		o.Metrics.Auth("google", "provider_error")
		return model.User{}, providerErr("google userinfo", err)
	}
	if !prof.EmailVerified {
		o.Metrics.Auth("google", "unverified")
		return model.User{}, invalid("Google account email is not verified")
	}
	u, err := o.Credentials.ProvisionFromIdentity(ctx, prof.Email, prof.Name)
	if err != nil {
		return model.User{}, err
	}
	o.Metrics.Auth("google", "ok")
	return u, nil
}
