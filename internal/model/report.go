package model

import "time"

// Report target kinds.
const (
    ReportTargetListing = "listing"
    ReportTargetAccount = "account"
)

// Report lifecycle states.
const (
    ReportOpen      = "open"
    ReportDismissed = "dismissed"
    ReportResolved  = "resolved"
)

// Report is a user-filed complaint about a listing or an account.
type Report struct {
    ID         uint64     `json:"id"`
    ReporterID uint64     `json:"reporter_id"`
    TargetType string     `json:"target_type"`
    TargetID   uint64     `json:"target_id"`
    Reason     string     `json:"reason"`
    Status     string     `json:"status"`
    HandledBy  *uint64    `json:"handled_by,omitempty"`
    HandledAt  *time.Time `json:"handled_at,omitempty"`
    CreatedAt  time.Time  `json:"created_at"`
}
