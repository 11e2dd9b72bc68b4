package model

import (
    "strings"
    "time"
)

// Plan is a named entitlement tier.  The zero value is not a valid plan;
// use ParsePlan when reading untrusted input.
type Plan string

const (
    PlanFree    Plan = "free"
    PlanBasic   Plan = "basic"
    PlanPro     Plan = "pro"
    PlanPremium Plan = "premium"
)

// Plans lists every tier in ascending order.
var Plans = []Plan{PlanFree, PlanBasic, PlanPro, PlanPremium}

// ParsePlan validates s against the known tiers.
func ParsePlan(s string) (Plan, bool) {
    for _, p := range Plans {
        if string(p) == s {
            return p, true
        }
    }
    return "", false
}

// Paid reports whether the tier is one of the purchasable ones.
func (p Plan) Paid() bool {
    return p == PlanBasic || p == PlanPro || p == PlanPremium
}

// OverrideType is the audit tag written to user_overrides for a change
// to this plan, e.g. "plan_premium".
func (p Plan) OverrideType() string { return "plan_" + string(p) }

// PlanFromOverride is the inverse of OverrideType.
func PlanFromOverride(overrideType string) (Plan, bool) {
    rest, ok := strings.CutPrefix(overrideType, "plan_")
    if !ok {
        return "", false
    }
    return ParsePlan(rest)
}

// User represents an application user record as stored in the
// `users` table.  Each field corresponds to a column in the
// database.  Plan is the only source of truth for the current
// entitlement; user_overrides only records how it got there.
//
// Fields:
//  ID                – primary key identifier of the user.
//  Email             – unique, lower-cased email address.
//  PasswordHash      – salt followed by the PBKDF2 derived key, hex encoded.
//  Plan              – current tier.
//  ReportsAnalyzed   – cumulative count of analyzed reports; never decreases.
//  DisputesPurchased – cumulative count of purchased dispute letters.
//  IsAdmin           – role flag; admins may also come from ADMIN_EMAILS.
//  StripeCustomerID  – payment processor customer, once known.
//  CreatedAt         – timestamp of creation.
type User struct {
    ID                uint64    // users.id
    Email             string    // users.email
    PasswordHash      string    // users.password_hash
    Plan              Plan      // users.plan
    ReportsAnalyzed   int       // users.reports_analyzed
    DisputesPurchased int       // users.disputes_purchased
    IsAdmin           bool      // users.is_admin
    StripeCustomerID  *string   // users.stripe_customer_id (nullable)
    CreatedAt         time.Time // users.created_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and contains metadata for expiry
// and revocation.  The plain token is not stored; only its
// SHA‑256 hash.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}

// PasswordResetToken is a single-use credential recovery artifact.  Like
// refresh tokens only the SHA‑256 hash of the emailed value is stored.
// Used flips from false to true exactly once.
type PasswordResetToken struct {
    ID        uint64    // password_reset_tokens.id
    UserID    uint64    // password_reset_tokens.user_id
    TokenHash string    // password_reset_tokens.token_hash
    ExpiresAt time.Time // password_reset_tokens.expires_at
    Used      bool      // password_reset_tokens.used
    CreatedAt time.Time // password_reset_tokens.created_at
}
