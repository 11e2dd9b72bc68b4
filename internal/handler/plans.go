package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/credit-cpr/internal/model"
	"github.com/iliyamo/credit-cpr/internal/payment"
)

type planInfo struct {
	Plan         model.Plan `json:"plan"`
	Name         string     `json:"name"`
	MonthlyPrice int        `json:"monthly_price_usd"`
	PriceID      string     `json:"price_id,omitempty"`
	Purchasable  bool       `json:"purchasable"`
	Features     []string   `json:"features"`
}

// PlansHandler serves the public plan catalog.  The response depends only
// on configuration, so the route sits behind the response cache.
type PlansHandler struct {
	Prices         payment.PriceTable
	PublishableKey string
}

func NewPlansHandler(prices payment.PriceTable, publishableKey string) *PlansHandler {
	return &PlansHandler{Prices: prices, PublishableKey: publishableKey}
}

func (h *PlansHandler) catalog() []planInfo {
	basic, basicOK := h.Prices.PriceFor(model.PlanBasic)
	pro, proOK := h.Prices.PriceFor(model.PlanPro)
	return []planInfo{
		{Plan: model.PlanFree, Name: "Free", Features: []string{"1 credit report analysis", "Identify errors & violations"}},
		{Plan: model.PlanBasic, Name: "Credit CPR Basic", MonthlyPrice: 19, PriceID: basic, Purchasable: basicOK,
			Features: []string{"Unlimited AI analysis", "Identify errors & violations", "Educational explanations", "Limited dispute templates", "Email support"}},
		{Plan: model.PlanPro, Name: "Credit CPR Pro", MonthlyPrice: 29, PriceID: pro, Purchasable: proOK,
			Features: []string{"Everything in Basic", "Unlimited dispute templates", "Advanced AI insights", "Personalized roadmap", "Priority support"}},
		{Plan: model.PlanPremium, Name: "Premium", Features: []string{"Everything in Pro", "Granted by promotion or support"}},
	}
}

// List returns the catalog.
func (h *PlansHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"plans":           h.catalog(),
		"publishable_key": h.PublishableKey,
	})
}
