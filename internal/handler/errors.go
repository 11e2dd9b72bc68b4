package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/credit-cpr/internal/service"
)

// statusFor maps the service error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDuplicate),
		errors.Is(err, service.ErrAlreadyUsed),
		errors.Is(err, service.ErrExhausted):
		return http.StatusConflict
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrProvider):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": ...}.  Validation and provider messages are
// shown as is; unexpected errors are logged and hidden.
func fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

// failWith writes err's status with a caller chosen message.
func failWith(c echo.Context, err error, msg string) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return fail(c, err)
	}
	return c.JSON(status, echo.Map{"error": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
