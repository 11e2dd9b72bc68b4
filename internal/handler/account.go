package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/credit-cpr/internal/model"
	"github.com/iliyamo/credit-cpr/internal/service"
)

// AccountHandler serves the signed-in user's entitlements, usage and
// saved dispute letters.
type AccountHandler struct {
	Ledger *service.Ledger
}

func NewAccountHandler(l *service.Ledger) *AccountHandler {
	return &AccountHandler{Ledger: l}
}

type analysisReq struct {
	ReportName  string `json:"report_name"`
	ErrorsFound int    `json:"errors_found"`
}

type letterReq struct {
	Bureau           string `json:"bureau"`
	ErrorDescription string `json:"error_description"`
}

// CanAnalyze answers whether the caller may run another analysis.
func (h *AccountHandler) CanAnalyze(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	d, err := h.Ledger.CanPerform(c.Request().Context(), s.User.ID, service.ActionAnalyzeReport)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// RecordAnalysis counts a finished analysis.  It is refused with 403 once
// the caller's quota is used up.
func (h *AccountHandler) RecordAnalysis(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	var req analysisReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Ledger.RecordAnalysis(ctx, s.User.ID, strings.TrimSpace(req.ReportName), req.ErrorsFound)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, newAnalysisView(rec))
}

// Analyses lists recent analyses, newest first.
func (h *AccountHandler) Analyses(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	list, err := h.Ledger.Analyses(c.Request().Context(), s.User.ID, 50)
	if err != nil {
		return fail(c, err)
	}
	out := make([]analysisView, 0, len(list))
	for _, a := range list {
		out = append(out, newAnalysisView(a))
	}
	return c.JSON(http.StatusOK, echo.Map{"analyses": out})
}

// Stats returns plan, counters and history totals.
func (h *AccountHandler) Stats(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	st, err := h.Ledger.Stats(c.Request().Context(), s.User.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// SaveLetter stores a draft letter.
func (h *AccountHandler) SaveLetter(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	var req letterReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	l, err := h.Ledger.SaveLetter(c.Request().Context(), s.User.ID,
		strings.TrimSpace(req.Bureau), strings.TrimSpace(req.ErrorDescription))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, newLetterView(l))
}

// Letters lists saved letters.
func (h *AccountHandler) Letters(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	list, err := h.Ledger.Letters(c.Request().Context(), s.User.ID)
	if err != nil {
		return fail(c, err)
	}
	out := make([]letterView, 0, len(list))
	for _, l := range list {
		out = append(out, newLetterView(l))
	}
	return c.JSON(http.StatusOK, echo.Map{"letters": out})
}

// PurchaseLetter marks a draft letter purchased.
func (h *AccountHandler) PurchaseLetter(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid letter id")
	}
	err = h.Ledger.RecordDisputePurchase(c.Request().Context(), s.User.ID, id)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"message": "Letter purchased"})
	case statusFor(err) == http.StatusConflict:
		return c.JSON(http.StatusConflict, echo.Map{"error": "Letter already purchased"})
	}
	return fail(c, err)
}

// DownloadLetter returns the letter as plain text when the caller's plan
// or purchase allows it.
func (h *AccountHandler) DownloadLetter(c echo.Context) error {
	s, ok, err := session(c)
	if !ok {
		return err
	}
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid letter id")
	}
	d, l, err := h.Ledger.CanDownloadLetter(c.Request().Context(), s.User.ID, id)
	if err != nil {
		return fail(c, err)
	}
	if !d.Allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": d.Reason})
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="dispute-%d.txt"`, l.ID))
	return c.String(http.StatusOK, renderLetter(s.User, l))
}

func renderLetter(u model.User, l model.DisputeLetter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\n", l.Bureau)
	fmt.Fprintf(&b, "From: %s\n", u.Email)
	fmt.Fprintf(&b, "Date: %s\n\n", l.CreatedAt.Format("January 2, 2006"))
	b.WriteString("Re: Request to investigate inaccurate information\n\n")
	b.WriteString(l.ErrorDescription)
	b.WriteString("\n")
	return b.String()
}
