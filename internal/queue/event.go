// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names.  Routing keys equal queue names on the default exchange.
const (
    PlanChangedQueue   = "entitlement.changed"
    PasswordResetQueue = "mail.password_reset"
)

// PlanChangedEvent is published after a plan mutation commits.  It carries
// enough information for downstream consumers to audit, notify, or trigger
// analytics without querying the primary database.
type PlanChangedEvent struct {
    UserID    uint64 `json:"user_id"`
    Email     string `json:"email"`
    FromPlan  string `json:"from_plan"`
    ToPlan    string `json:"to_plan"`
    Actor     string `json:"actor"`
    Reason    string `json:"reason,omitempty"`
    ExpiresAt string `json:"expires_at,omitempty"`
    ChangedAt string `json:"changed_at"`
}

// PasswordResetMailEvent asks the mailer to deliver a reset link.
type PasswordResetMailEvent struct {
    UserID    uint64 `json:"user_id"`
    Email     string `json:"email"`
    ResetURL  string `json:"reset_url"`
    ExpiresAt string `json:"expires_at"`
}
