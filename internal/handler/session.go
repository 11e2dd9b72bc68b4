package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/credit-cpr/internal/middleware"
)

// session returns the caller or writes a 401.  ok is false when the
// response has already been written.
func session(c echo.Context) (middleware.Session, bool, error) {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return middleware.Session{}, false, c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	return s, true, nil
}

// idParam parses a positive numeric path parameter.
func idParam(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}
