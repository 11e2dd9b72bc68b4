package middleware

// identity.go holds the caller identification shared by the rate limiter
// and the cache.  Authenticated callers are identified by the session's
// user id, everyone else is "anon".

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// callerID returns the authenticated user id as a string, or "anon".
func callerID(c echo.Context) string {
    if s, ok := SessionFrom(c); ok {
        return strconv.FormatUint(s.User.ID, 10)
    }
    if v, ok := c.Get("user_id").(string); ok && v != "" {
        return v
    }
    return "anon"
}

// authenticated reports whether the request carries credentials, whether
// or not they were verified yet.
func authenticated(c echo.Context) bool {
    if _, ok := SessionFrom(c); ok {
        return true
    }
    return c.Request().Header.Get("Authorization") != ""
}
