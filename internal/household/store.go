package household

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrDuplicateLink is returned by CreateSaleLink when a linkage with the same
// (household, sale date, product type, premium, policy number) already
// exists. The write is rejected, never silently ignored or duplicated.
var ErrDuplicateLink = eris.New("household: duplicate sale link")

// Store defines persistence operations for households, sales, and linkages.
type Store interface {
	// Households
	CreateHousehold(ctx context.Context, h *Household) error
	GetHousehold(ctx context.Context, id int64) (*Household, error)
	ListOpenByContact(ctx context.Context, agencyID, contactID int64) ([]Household, error)
	ListOpenByHouseholdKey(ctx context.Context, agencyID int64, key string) ([]Household, error)

	// MarkQuoted advances an open household to quoted.
	MarkQuoted(ctx context.Context, householdID int64) error
	// MarkSold transitions a household to sold and clears any attention flag.
	MarkSold(ctx context.Context, householdID int64) error
	// FlagAttention marks a household for human review; conflictingSource is
	// recorded only for AttentionSourceConflict.
	FlagAttention(ctx context.Context, householdID int64, reason AttentionReason, conflictingSource string) error
	// BackfillAttribution fills team member and lead source only where the
	// household currently has no value.
	BackfillAttribution(ctx context.Context, householdID int64, teamMember, leadSource string) error
	// SetContact links a household to its canonical contact.
	SetContact(ctx context.Context, householdID, contactID int64) error

	// Sales
	CreateSale(ctx context.Context, s *Sale) error
	GetSale(ctx context.Context, id int64) (*Sale, error)
	ListUnlinkedSales(ctx context.Context, agencyID int64) ([]Sale, error)

	// Linkages
	CreateSaleLink(ctx context.Context, l *SaleLink) error
	GetLinkBySale(ctx context.Context, saleID int64) (*SaleLink, error)
}
