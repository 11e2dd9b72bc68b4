package model

import "time"

// AnalysisRecord is one entry of the `analysis_history` usage log.
type AnalysisRecord struct {
    ID          uint64
    UserID      uint64
    ReportName  string
    ErrorsFound int
    AnalyzedAt  time.Time
}

// Letter statuses.
const (
    LetterDraft = "draft"
    LetterReady = "ready"
)

// DisputeLetter is a saved dispute letter.  Drafts become "ready" once
// purchased.
type DisputeLetter struct {
    ID               uint64
    UserID           uint64
    Bureau           string
    ErrorDescription string
    Status           string
    Purchased        bool
    CreatedAt        time.Time
}
