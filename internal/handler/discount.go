package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/credit-cpr/internal/service"
)

// DiscountHandler lets a signed-in user redeem a code.
type DiscountHandler struct {
	Discounts *service.Discounts
}

func NewDiscountHandler(d *service.Discounts) *DiscountHandler {
	return &DiscountHandler{Discounts: d}
}

type redeemReq struct {
	Code string `json:"code"`
}

// Redeem applies a discount code to the caller.
func (h *DiscountHandler) Redeem(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	var req redeemReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		return badRequest(c, "Please enter a discount code")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Discounts.Redeem(ctx, s.User.ID, req.Code)
	if err != nil {
		return failWith(c, err, service.RedeemMessage(err))
	}
	return c.JSON(http.StatusOK, out)
}
