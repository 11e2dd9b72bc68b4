package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "context"  // context is passed to the session loader
    "errors"   // errors.Is distinguishes a deleted account from storage failures
    "net/http" // HTTP status codes for responses
    "strconv"  // strconv renders the user id for rate limit keys
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/credit-cpr/internal/model"
    "github.com/iliyamo/credit-cpr/internal/service"
    "github.com/iliyamo/credit-cpr/internal/utils"
)

const sessionKey = "session"

// Session is the authenticated caller of a request.  It is built once by
// Auth and read by handlers through SessionFrom, so every handler sees the
// same user record, already corrected for expired plan grants.
type Session struct {
    User  model.User
    Admin bool
}

// SessionLoader resolves the user behind a verified access token.
// service.Ledger implements it.
type SessionLoader interface {
    CurrentUser(ctx context.Context, userID uint64) (model.User, error)
    IsAdmin(u model.User) bool
}

// Auth returns an Echo middleware that validates a Bearer access token,
// loads the user it names and stores a Session in the request context.
// Requests without a valid token are rejected with 401 before reaching the
// handler.
func Auth(secret string, loader SessionLoader) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            uid, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            u, err := loader.CurrentUser(c.Request().Context(), uid)
            if errors.Is(err, service.ErrNotFound) {
                // token outlived the account
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            if err != nil {
                return err
            }

            c.Set(sessionKey, Session{User: u, Admin: loader.IsAdmin(u)})
            c.Set("user_id", strconv.FormatUint(u.ID, 10))
            return next(c)
        }
    }
}

// SessionFrom returns the session stored by Auth.
func SessionFrom(c echo.Context) (Session, bool) {
    s, ok := c.Get(sessionKey).(Session)
    return s, ok
}

// RequireAdmin rejects callers without the admin role with 403.  It must
// run after Auth; a request that reaches it without a session gets 401.
func RequireAdmin() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            s, ok := SessionFrom(c)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
            }
            if !s.Admin {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
