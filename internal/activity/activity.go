// Package activity records customer touchpoints from every workflow into a
// single append-only timeline keyed by resolved contact.
package activity

import "time"

// Source modules allowed to write activities. Every entry names the workflow
// that produced it so the timeline reads chronologically across modules.
const (
	SourceLeadIntake   = "lead_intake"
	SourceCancellation = "cancellation"
	SourceRenewal      = "renewal"
	SourceWinback      = "winback"
	SourceSales        = "sales"
	SourceBackfill     = "backfill"
)

// Activity is one timeline entry. Rows are insert-only; there is no update
// or delete path anywhere in the store.
type Activity struct {
	ID           string    `json:"id"`
	AgencyID     int64     `json:"agency_id"`
	ContactID    int64     `json:"contact_id"`
	SourceModule string    `json:"source_module"`
	ActivityType string    `json:"activity_type"`
	Subtype      string    `json:"subtype,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Outcome      string    `json:"outcome,omitempty"`
	Actor        string    `json:"actor,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func validSource(s string) bool {
	switch s {
	case SourceLeadIntake, SourceCancellation, SourceRenewal, SourceWinback, SourceSales, SourceBackfill:
		return true
	}
	return false
}
