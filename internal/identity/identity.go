// Package identity is the boundary to the OAuth identity provider used for
// "Sign in with Google".
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleUserInfoURL is Google's OAuth2 userinfo endpoint.
const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Profile is the verified identity returned by the provider.
type Profile struct {
	Email         string
	Name          string
	EmailVerified bool
}

// Provider abstracts the OAuth authorization-code flow.
type Provider interface {
	// AuthCodeURL returns the consent page URL carrying state.
	AuthCodeURL(state string) string
	// ExchangeCodeForToken trades an authorization code for a token.
	ExchangeCodeForToken(ctx context.Context, code string) (*oauth2.Token, error)
	// FetchProfile reads the signed-in user's profile with tok.
	FetchProfile(ctx context.Context, tok *oauth2.Token) (Profile, error)
}

// OAuthProvider implements Provider for any OAuth2 endpoint with a JSON
// userinfo document carrying "email" and "name".
type OAuthProvider struct {
	cfg         *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider configures Google's endpoints with the openid, email
// and profile scopes.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *OAuthProvider {
	return NewOAuthProvider(&oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}, GoogleUserInfoURL)
}

// NewOAuthProvider wraps an arbitrary oauth2 configuration.
func NewOAuthProvider(cfg *oauth2.Config, userInfoURL string) *OAuthProvider {
	return &OAuthProvider{cfg: cfg, userInfoURL: userInfoURL}
}

func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *OAuthProvider) ExchangeCodeForToken(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return tok, nil
}

func (p *OAuthProvider) FetchProfile(ctx context.Context, tok *oauth2.Token) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("create userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Profile{}, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info struct {
		Email         string `json:"email"`
		Name          string `json:"name"`
		VerifiedEmail *bool  `json:"verified_email"`
		EmailVerified *bool  `json:"email_verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Profile{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Email == "" {
		return Profile{}, fmt.Errorf("userinfo has no email")
	}
	verified := true
	switch {
	case info.VerifiedEmail != nil:
		verified = *info.VerifiedEmail
	case info.EmailVerified != nil:
		verified = *info.EmailVerified
	}
	return Profile{Email: info.Email, Name: info.Name, EmailVerified: verified}, nil
}
