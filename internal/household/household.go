// Package household tracks agency pipeline records through lead -> quote ->
// sale and links completed sales back to the record that produced them.
package household

import "time"

// Status is the pipeline state of a household.
type Status string

const (
	StatusOpen   Status = "open"
	StatusQuoted Status = "quoted"
	StatusSold   Status = "sold"
)

// AttentionReason marks a household that automatic resolution could not
// settle; a human decision is required. Empty means no attention needed.
type AttentionReason string

const (
	AttentionNone              AttentionReason = ""
	AttentionMissingLeadSource AttentionReason = "missing_lead_source"
	AttentionSourceConflict    AttentionReason = "source_conflict"
	AttentionManualReview      AttentionReason = "manual_review"
	AttentionAmbiguousMatch    AttentionReason = "ambiguous_match"
)

// Confidence is the qualitative match-quality label returned by the matcher.
type Confidence string

const (
	ConfidenceExact  Confidence = "exact"  // contact and lead source agree
	ConfidenceStrong Confidence = "strong" // contact identity match
	ConfidenceWeak   Confidence = "weak"   // household-key match only
)

// Household is an agency-scoped pipeline record. Terminal at "sold", though
// still referenceable downstream.
type Household struct {
	ID                    int64           `json:"id" db:"id"`
	AgencyID              int64           `json:"agency_id" db:"agency_id"`
	ContactID             *int64          `json:"contact_id,omitempty" db:"contact_id"`
	HouseholdKey          string          `json:"household_key,omitempty" db:"household_key"`
	Status                Status          `json:"status" db:"status"`
	AttentionReason       AttentionReason `json:"attention_reason,omitempty" db:"attention_reason"`
	LeadSource            string          `json:"lead_source,omitempty" db:"lead_source"`
	ConflictingLeadSource string          `json:"conflicting_lead_source,omitempty" db:"conflicting_lead_source"`
	TeamMember            string          `json:"team_member,omitempty" db:"team_member"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// Sale is an immutable record of a closed transaction. A single sale may
// carry several policy lines; the matcher is invoked once per sale.
type Sale struct {
	ID           int64     `json:"id" db:"id"`
	AgencyID     int64     `json:"agency_id" db:"agency_id"`
	ContactID    *int64    `json:"contact_id,omitempty" db:"contact_id"`
	SaleDate     time.Time `json:"sale_date" db:"sale_date"`
	ProductType  string    `json:"product_type" db:"product_type"`
	PremiumCents int64     `json:"premium_cents" db:"premium_cents"`
	PolicyNumber string    `json:"policy_number,omitempty" db:"policy_number"`
	TeamMember   string    `json:"team_member,omitempty" db:"team_member"`
	LeadSource   string    `json:"lead_source,omitempty" db:"lead_source"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// SaleLink records a sale-to-household linkage. Its identity for duplicate
// prevention is (household, sale date, product type, premium, policy number),
// enforced by a UNIQUE constraint in the store.
type SaleLink struct {
	ID           string     `json:"id" db:"id"`
	HouseholdID  int64      `json:"household_id" db:"household_id"`
	SaleID       int64      `json:"sale_id" db:"sale_id"`
	SaleDate     time.Time  `json:"sale_date" db:"sale_date"`
	ProductType  string     `json:"product_type" db:"product_type"`
	PremiumCents int64      `json:"premium_cents" db:"premium_cents"`
	PolicyNumber string     `json:"policy_number,omitempty" db:"policy_number"`
	Confidence   Confidence `json:"confidence" db:"confidence"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Candidate is a household the matcher scored for a sale. Ambiguous is set
// when another candidate tied the best score; ambiguous candidates are
// deferred to a human reviewer instead of auto-linked.
type Candidate struct {
	Household  *Household `json:"household"`
	Confidence Confidence `json:"confidence"`
	Ambiguous  bool       `json:"ambiguous,omitempty"`
}

// LinkResult reports the outcome of linking a sale to a household.
type LinkResult struct {
	Link          *SaleLink `json:"link,omitempty"`
	AlreadyLinked bool      `json:"already_linked"`
}
