// Package backfill links rows from the legacy per-module tables to resolved
// contacts, creating contacts for families that never matched by phone.
package backfill

import (
	"context"
	"time"
)

// Legacy source tables. Each holds free-text identity fields captured before
// contact resolution existed, plus a contact_id column this package fills.
const (
	TableLeads         = "legacy_leads"
	TableCancellations = "legacy_cancellations"
	TableRenewals      = "legacy_renewals"
	TableWinbacks      = "legacy_winbacks"
)

// Tables lists the legacy sources in processing order.
var Tables = []string{TableLeads, TableCancellations, TableRenewals, TableWinbacks}

// SourceRow is one unlinked legacy row.
type SourceRow struct {
	ID         int64
	AgencyID   int64
	FirstName  string
	LastName   string
	PostalCode string
	PhoneRaw   string
	Email      string
	Street     string
	City       string
	State      string
	CreatedAt  time.Time
}

// SourceStore reads legacy rows and records which contact each row resolved
// to. Linking is the only mutation; the legacy rows themselves are immutable.
type SourceStore interface {
	ListUnlinked(ctx context.Context, table string, agencyID int64) ([]SourceRow, error)
	LinkContact(ctx context.Context, table string, rowID, contactID int64) error
	CountUnlinked(ctx context.Context, agencyID int64) (map[string]int64, error)
}

func validTable(table string) bool {
	for _, t := range Tables {
		if t == table {
			return true
		}
	}
	return false
}
