package household

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coverpoint/identity-cli/internal/identity"
)

// Intake records pipeline progress against resolved contacts: new leads open
// households, quotes advance them, and competing lead-source claims are
// flagged for review rather than resolved automatically.
type Intake struct {
	store Store
	rules *SourceRules
}

// NewIntake creates a pipeline intake. rules may be nil; lead sources are
// then normalized by spelling only.
func NewIntake(store Store, rules *SourceRules) *Intake {
	return &Intake{store: store, rules: rules}
}

// RecordLead registers a lead for a resolved contact. If the contact already
// has an open household claimed by a different lead source, the household is
// flagged source_conflict and the competing source identifier recorded; the
// conflict is left to a human reviewer, never auto-resolved. A household
// with no lead source at all is flagged missing_lead_source.
func (t *Intake) RecordLead(ctx context.Context, contact *identity.Contact, leadSource, teamMember string) (*Household, error) {
	if contact == nil || contact.ID == 0 {
		return nil, eris.New("household: record lead requires a resolved contact")
	}
	leadSource = t.rules.Normalize(leadSource)

	log := zap.L().With(
		zap.Int64("agency_id", contact.AgencyID),
		zap.Int64("contact_id", contact.ID),
	)

	existing, err := t.openHousehold(ctx, contact)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.ContactID == nil {
			if err := t.store.SetContact(ctx, existing.ID, contact.ID); err != nil {
				return nil, eris.Wrapf(err, "household: adopt household %d", existing.ID)
			}
			existing.ContactID = &contact.ID
		}

		switch {
		case leadSource != "" && existing.LeadSource != "" && existing.LeadSource != leadSource:
			if err := t.store.FlagAttention(ctx, existing.ID, AttentionSourceConflict, leadSource); err != nil {
				return nil, eris.Wrapf(err, "household: flag source conflict on %d", existing.ID)
			}
			existing.AttentionReason = AttentionSourceConflict
			existing.ConflictingLeadSource = leadSource
			log.Warn("intake: lead source conflict",
				zap.Int64("household_id", existing.ID),
				zap.String("claimed_by", existing.LeadSource),
				zap.String("also_claimed_by", leadSource),
			)
		case leadSource != "" && existing.LeadSource == "":
			if err := t.store.BackfillAttribution(ctx, existing.ID, teamMember, leadSource); err != nil {
				return nil, eris.Wrapf(err, "household: backfill lead source on %d", existing.ID)
			}
			existing.LeadSource = leadSource
			if existing.TeamMember == "" {
				existing.TeamMember = teamMember
			}
		}
		return existing, nil
	}

	h := &Household{
		AgencyID:     contact.AgencyID,
		ContactID:    &contact.ID,
		HouseholdKey: contact.HouseholdKey,
		Status:       StatusOpen,
		LeadSource:   leadSource,
		TeamMember:   teamMember,
	}
	if leadSource == "" {
		h.AttentionReason = AttentionMissingLeadSource
	}
	if err := t.store.CreateHousehold(ctx, h); err != nil {
		return nil, eris.Wrap(err, "household: create from lead")
	}

	log.Info("intake: household opened",
		zap.Int64("household_id", h.ID),
		zap.String("lead_source", leadSource),
	)
	return h, nil
}

// RecordQuote advances an open household to quoted.
func (t *Intake) RecordQuote(ctx context.Context, householdID int64) error {
	if err := t.store.MarkQuoted(ctx, householdID); err != nil {
		return eris.Wrapf(err, "household: mark household %d quoted", householdID)
	}
	return nil
}

// openHousehold finds the contact's open pipeline record, falling back to
// key-matched households that predate identity resolution.
func (t *Intake) openHousehold(ctx context.Context, contact *identity.Contact) (*Household, error) {
	byContact, err := t.store.ListOpenByContact(ctx, contact.AgencyID, contact.ID)
	if err != nil {
		return nil, eris.Wrap(err, "household: list open by contact")
	}
	if len(byContact) > 0 {
		return &byContact[0], nil
	}

	if contact.HouseholdKey == "" {
		return nil, nil
	}
	byKey, err := t.store.ListOpenByHouseholdKey(ctx, contact.AgencyID, contact.HouseholdKey)
	if err != nil {
		return nil, eris.Wrap(err, "household: list open by key")
	}
	for i := range byKey {
		if byKey[i].ContactID == nil {
			return &byKey[i], nil
		}
	}
	return nil, nil
}
