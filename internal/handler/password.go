package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/credit-cpr/internal/service"
)

// ForgotMessage is the only answer to a reset request, whether or not the
// email belongs to an account.
const ForgotMessage = "If an account exists with that email, a password reset link has been sent."

// PasswordHandler serves the forgot/reset password flow.
type PasswordHandler struct {
	Reset *service.Reset
}

func NewPasswordHandler(r *service.Reset) *PasswordHandler {
	return &PasswordHandler{Reset: r}
}

type forgotReq struct {
	Email string `json:"email"`
}

type resetReq struct {
	ResetToken      string `json:"reset_token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Forgot issues a reset link.  Failures are logged, never shown.
func (h *PasswordHandler) Forgot(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return badRequest(c, "Please enter your email")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Reset.RequestReset(ctx, req.Email); err != nil {
		c.Logger().Errorf("password reset request: %v", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": ForgotMessage})
}

// Check reports whether the reset_token query parameter can still be used.
func (h *PasswordHandler) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Reset.Verify(ctx, c.QueryParam("reset_token")); err != nil {
		return h.reject(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true})
}

// Complete sets the new password.
func (h *PasswordHandler) Complete(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		return badRequest(c, "Passwords don't match")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Reset.Redeem(ctx, req.ResetToken, req.Password); err != nil {
		return h.reject(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password reset successfully! Please sign in with your new password."})
}

func (h *PasswordHandler) reject(c echo.Context, err error) error {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return fail(c, err)
	case http.StatusNotFound:
		return c.JSON(http.StatusBadRequest, echo.Map{"valid": false, "error": service.ResetMessage(err)})
	case http.StatusInternalServerError:
		return fail(c, err)
	}
	return c.JSON(statusFor(err), echo.Map{"valid": false, "error": service.ResetMessage(err)})
}
