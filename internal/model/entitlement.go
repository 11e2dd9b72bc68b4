package model

import "time"

// EntitlementOverride is one row of the append-only `user_overrides`
// audit log.  Every plan change writes exactly one.
type EntitlementOverride struct {
    ID        uint64     // user_overrides.id
    UserID    uint64     // user_overrides.user_id
    Type      string     // user_overrides.override_type, e.g. plan_premium
    Reason    string     // user_overrides.reason
    GrantedBy string     // user_overrides.granted_by (admin email, "system" or "stripe")
    ExpiresAt *time.Time // user_overrides.expires_at (nullable)
    CreatedAt time.Time  // user_overrides.created_at
}

// DiscountCode is a redeemable promotional code.  A nil UsesRemaining
// means the code is unbounded; a nil ExpiresAt means it never expires.
type DiscountCode struct {
    ID              uint64     // discount_codes.id
    Code            string     // discount_codes.code (upper-cased)
    DiscountPercent *int       // discount_codes.discount_percent
    PlanOverride    *Plan      // discount_codes.plan_override
    UsesRemaining   *int       // discount_codes.uses_remaining
    ExpiresAt       *time.Time // discount_codes.expires_at
    CreatedAt       time.Time  // discount_codes.created_at
}

// ProcessedCheckout records that a completed payment session has already
// been turned into a plan change.  SessionID is the idempotency key.
type ProcessedCheckout struct {
    SessionID   string    // processed_checkouts.session_id
    UserID      uint64    // processed_checkouts.user_id
    Plan        Plan      // processed_checkouts.plan
    ProcessedAt time.Time // processed_checkouts.processed_at
}
