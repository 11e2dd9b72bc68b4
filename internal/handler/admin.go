package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/credit-cpr/internal/model"
	"github.com/iliyamo/credit-cpr/internal/repository"
	"github.com/iliyamo/credit-cpr/internal/service"
)

// AdminHandler is the back office: plan grants, discount codes and the
// user list.  Routes are guarded by middleware.RequireAdmin.
type AdminHandler struct {
	Discounts   *service.Discounts
	Credentials *service.Credentials
	Ledger      *service.Ledger
}

func NewAdminHandler(d *service.Discounts, creds *service.Credentials, l *service.Ledger) *AdminHandler {
	return &AdminHandler{Discounts: d, Credentials: creds, Ledger: l}
}

type grantReq struct {
	Email        string `json:"email"`
	Plan         string `json:"plan"`
	DurationDays *int   `json:"duration_days"`
	Reason       string `json:"reason"`
}

type discountReq struct {
	Code            string  `json:"code"`
	DiscountPercent *int    `json:"discount_percent"`
	PlanOverride    *string `json:"plan_override"`
	MaxUses         *int    `json:"max_uses"`
	ValidDays       *int    `json:"valid_days"`
}

type setRoleReq struct {
	Admin *bool `json:"admin"`
}

type setPlanReq struct {
	Plan   string `json:"plan"`
	Reason string `json:"reason"`
}

// Grant gives a user a plan, optionally for a limited number of days.
func (h *AdminHandler) Grant(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	var req grantReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Email) == "" {
		return badRequest(c, "email is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	msg, err := h.Discounts.GrantAccess(ctx, service.Grant{
		Email:        req.Email,
		Plan:         model.Plan(strings.ToLower(strings.TrimSpace(req.Plan))),
		DurationDays: req.DurationDays,
		Reason:       req.Reason,
		Actor:        s.User.Email,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": msg})
}

// CreateDiscount stores a new code.
func (h *AdminHandler) CreateDiscount(c echo.Context) error {
	var req discountReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	in := service.NewCode{
		Code:            req.Code,
		DiscountPercent: req.DiscountPercent,
		MaxUses:         req.MaxUses,
		ValidDays:       req.ValidDays,
	}
	if req.PlanOverride != nil && *req.PlanOverride != "" {
		p := model.Plan(strings.ToLower(strings.TrimSpace(*req.PlanOverride)))
		in.PlanOverride = &p
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dc, err := h.Discounts.CreateCode(ctx, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, newDiscountView(dc))
}

// Users searches accounts by email fragment and plan, newest first.
func (h *AdminHandler) Users(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	ps, _ := strconv.Atoi(c.QueryParam("page_size"))
	if ps < 1 {
		ps = 50
	}
	if ps > 200 {
		ps = 200
	}

	q := repository.UserSearchQuery{
		Email:    strings.TrimSpace(c.QueryParam("q")),
		Plan:     model.Plan(strings.ToLower(strings.TrimSpace(c.QueryParam("plan")))),
		Page:     page,
		PageSize: ps,
	}
	list, total, err := h.Credentials.SearchUsers(c.Request().Context(), q)
	if err != nil {
		return fail(c, err)
	}
	out := make([]userView, 0, len(list))
	for _, u := range list {
		out = append(out, newUserView(u, h.Ledger.IsAdmin(u)))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"users":     out,
		"total":     total,
		"page":      page,
		"page_size": ps,
	})
}

// Overrides returns a user's plan change history.
func (h *AdminHandler) Overrides(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	list, err := h.Ledger.OverrideHistory(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"overrides": newOverrideViews(list)})
}

// SetPlan is the one-click plan change from the user list.
func (h *AdminHandler) SetPlan(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	var req setPlanReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "Admin plan change"
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pc, err := h.Ledger.SetPlan(ctx, service.PlanChange{
		UserID: id,
		Plan:   model.Plan(strings.ToLower(strings.TrimSpace(req.Plan))),
		Actor:  s.User.Email,
		Reason: reason,
		Source: "admin",
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, newUserView(pc.User, h.Ledger.IsAdmin(pc.User)))
}

// SetRole grants or revokes the stored admin flag of a user.  Accounts on
// the configured allow-list stay admins either way.
func (h *AdminHandler) SetRole(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	var req setRoleReq
	if err := c.Bind(&req); err != nil || req.Admin == nil {
		return badRequest(c, "admin (true or false) is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Credentials.SetAdmin(ctx, s.User, id, *req.Admin)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, newUserView(u, h.Ledger.IsAdmin(u)))
}
