package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newFakeProvider serves /token and /userinfo like an OAuth2 provider.
func newFakeProvider(t *testing.T, userInfo http.HandlerFunc) *OAuthProvider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fake-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	if userInfo != nil {
		mux.HandleFunc("/userinfo", userInfo)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return NewOAuthProvider(&oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/v1/auth/google/callback",
		Scopes:       []string{"email"},
		Endpoint:     oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token"},
	}, server.URL+"/userinfo")
}

func TestAuthCodeURLCarriesState(t *testing.T) {
	p := newFakeProvider(t, nil)
	u, err := url.Parse(p.AuthCodeURL("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", u.Query().Get("state"))
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
}

func TestExchangeAndFetchProfile(t *testing.T) {
	p := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fake-access-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"email": "a@b.com", "name": "A B", "verified_email": true})
	})
	ctx := context.Background()

	tok, err := p.ExchangeCodeForToken(ctx, "good-code")
	require.NoError(t, err)
	prof, err := p.FetchProfile(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, Profile{Email: "a@b.com", Name: "A B", EmailVerified: true}, prof)
}

func TestExchangeRejectsBadCode(t *testing.T) {
	p := newFakeProvider(t, nil)
	_, err := p.ExchangeCodeForToken(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestFetchProfileErrors(t *testing.T) {
	p := newFakeProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("nope"))
	})
	_, err := p.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "x"})
	assert.ErrorContains(t, err, "401")

	p = newFakeProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "no email"})
	})
	_, err = p.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "x"})
	assert.ErrorContains(t, err, "no email")
}
