package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/credit-cpr/internal/service"
)

// OAuthHandler serves "Sign in with Google".  A successful callback
// returns the same token pair as a password login.
type OAuthHandler struct {
	Login *service.OAuthLogin
	Auth  *AuthHandler
}

func NewOAuthHandler(login *service.OAuthLogin, auth *AuthHandler) *OAuthHandler {
	return &OAuthHandler{Login: login, Auth: auth}
}

// Start redirects the browser to the consent page.
func (h *OAuthHandler) Start(c echo.Context) error {
	url, err := h.Login.Begin(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.Redirect(http.StatusFound, url)
}

// Callback finishes the flow with the code and state from the provider.
func (h *OAuthHandler) Callback(c echo.Context) error {
	if e := c.QueryParam("error"); e != "" {
		return badRequest(c, "Google sign-in was cancelled: "+e)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	u, err := h.Login.Complete(ctx, c.QueryParam("code"), c.QueryParam("state"))
	if err != nil {
		return fail(c, err)
	}
	if u, err = h.Auth.Ledger.CurrentUser(ctx, u.ID); err != nil {
		return fail(c, err)
	}
	resp, err := h.Auth.issue(ctx, u)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}
