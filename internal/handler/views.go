package handler

import (
	"time"

	"github.com/iliyamo/credit-cpr/internal/model"
)

// JSON shapes returned by the API.  Model types stay free of tags.

type userView struct {
	ID                uint64     `json:"id"`
	Email             string     `json:"email"`
	Plan              model.Plan `json:"plan"`
	ReportsAnalyzed   int        `json:"reports_analyzed"`
	DisputesPurchased int        `json:"disputes_purchased"`
	Admin             bool       `json:"admin"`
	CreatedAt         time.Time  `json:"created_at"`
}

func newUserView(u model.User, admin bool) userView {
	return userView{
		ID:                u.ID,
		Email:             u.Email,
		Plan:              u.Plan,
		ReportsAnalyzed:   u.ReportsAnalyzed,
		DisputesPurchased: u.DisputesPurchased,
		Admin:             admin,
		CreatedAt:         u.CreatedAt,
	}
}

type overrideView struct {
	ID        uint64     `json:"id"`
	Type      string     `json:"override_type"`
	Reason    string     `json:"reason"`
	GrantedBy string     `json:"granted_by"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func newOverrideViews(list []model.EntitlementOverride) []overrideView {
	out := make([]overrideView, 0, len(list))
	for _, o := range list {
		out = append(out, overrideView{
			ID:        o.ID,
			Type:      o.Type,
			Reason:    o.Reason,
			GrantedBy: o.GrantedBy,
			ExpiresAt: o.ExpiresAt,
			CreatedAt: o.CreatedAt,
		})
	}
	return out
}

type analysisView struct {
	ID          uint64    `json:"id"`
	ReportName  string    `json:"report_name"`
	ErrorsFound int       `json:"errors_found"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

func newAnalysisView(a model.AnalysisRecord) analysisView {
	return analysisView{ID: a.ID, ReportName: a.ReportName, ErrorsFound: a.ErrorsFound, AnalyzedAt: a.AnalyzedAt}
}

type letterView struct {
	ID               uint64    `json:"id"`
	Bureau           string    `json:"bureau"`
	ErrorDescription string    `json:"error_description"`
	Status           string    `json:"status"`
	Purchased        bool      `json:"purchased"`
	CreatedAt        time.Time `json:"created_at"`
}

func newLetterView(l model.DisputeLetter) letterView {
	return letterView{
		ID:               l.ID,
		Bureau:           l.Bureau,
		ErrorDescription: l.ErrorDescription,
		Status:           l.Status,
		Purchased:        l.Purchased,
		CreatedAt:        l.CreatedAt,
	}
}

type discountView struct {
	Code            string      `json:"code"`
	DiscountPercent *int        `json:"discount_percent"`
	PlanOverride    *model.Plan `json:"plan_override"`
	UsesRemaining   *int        `json:"uses_remaining"`
	ExpiresAt       *time.Time  `json:"expires_at"`
	CreatedAt       time.Time   `json:"created_at"`
}

func newDiscountView(d model.DiscountCode) discountView {
	return discountView{
		Code:            d.Code,
		DiscountPercent: d.DiscountPercent,
		PlanOverride:    d.PlanOverride,
		UsesRemaining:   d.UsesRemaining,
		ExpiresAt:       d.ExpiresAt,
		CreatedAt:       d.CreatedAt,
	}
}
