package household

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coverpoint/identity-cli/internal/identity"
)

// Matcher finds the open household a completed sale belongs to. Match is
// side-effect free: it reads candidates and scores them, nothing more.
type Matcher struct {
	store    Store
	contacts identity.ContactStore
	rules    *SourceRules
}

// NewMatcher creates a sale-to-household matcher. rules may be nil.
func NewMatcher(store Store, contacts identity.ContactStore, rules *SourceRules) *Matcher {
	return &Matcher{store: store, contacts: contacts, rules: rules}
}

// Match returns the best-scoring open household candidate for the sale's
// contact, or nil when no candidate exists. Confidence labels:
//
//	exact:  contact matches and both lead sources agree
//	strong: contact matches
//	weak:   only the household key matches (record predates resolution)
//
// Candidate.Ambiguous is set when a second candidate ties the best score;
// ambiguous matches are never auto-linked.
func (m *Matcher) Match(ctx context.Context, sale *Sale) (*Candidate, error) {
	if sale == nil {
		return nil, eris.New("household: match requires a sale")
	}
	if sale.ContactID == nil {
		// Historical sale never resolved to a contact; nothing to score.
		return nil, nil
	}

	candidates, err := m.store.ListOpenByContact(ctx, sale.AgencyID, *sale.ContactID)
	if err != nil {
		return nil, eris.Wrap(err, "household: list candidates by contact")
	}

	saleSource := m.rules.Normalize(sale.LeadSource)
	scored := make([]Candidate, 0, len(candidates))
	for i := range candidates {
		h := &candidates[i]
		conf := ConfidenceStrong
		if saleSource != "" && m.rules.Normalize(h.LeadSource) == saleSource {
			conf = ConfidenceExact
		}
		scored = append(scored, Candidate{Household: h, Confidence: conf})
	}

	// Fallback: households that share the contact's household key but were
	// never linked to a contact.
	if len(scored) == 0 {
		contact, err := m.contacts.GetContact(ctx, *sale.ContactID)
		if err != nil {
			return nil, eris.Wrap(err, "household: load sale contact")
		}
		if contact != nil && contact.HouseholdKey != "" {
			byKey, err := m.store.ListOpenByHouseholdKey(ctx, sale.AgencyID, contact.HouseholdKey)
			if err != nil {
				return nil, eris.Wrap(err, "household: list candidates by key")
			}
			for i := range byKey {
				h := &byKey[i]
				if h.ContactID != nil && *h.ContactID != *sale.ContactID {
					continue
				}
				scored = append(scored, Candidate{Household: h, Confidence: ConfidenceWeak})
			}
		}
	}

	if len(scored) == 0 {
		return nil, nil
	}

	best := bestCandidate(scored)
	zap.L().Debug("match: candidate selected",
		zap.Int64("sale_id", sale.ID),
		zap.Int64("household_id", best.Household.ID),
		zap.String("confidence", string(best.Confidence)),
		zap.Bool("ambiguous", best.Ambiguous),
	)
	return best, nil
}

// confidenceRank orders labels for comparison.
func confidenceRank(c Confidence) int {
	switch c {
	case ConfidenceExact:
		return 3
	case ConfidenceStrong:
		return 2
	case ConfidenceWeak:
		return 1
	default:
		return 0
	}
}

// bestCandidate picks the highest-confidence candidate; age breaks ties
// (the oldest open record is the one that produced the sale) and a genuine
// tie marks the result ambiguous.
func bestCandidate(scored []Candidate) *Candidate {
	best := &scored[0]
	tied := false
	for i := 1; i < len(scored); i++ {
		c := &scored[i]
		switch {
		case confidenceRank(c.Confidence) > confidenceRank(best.Confidence):
			best, tied = c, false
		case confidenceRank(c.Confidence) == confidenceRank(best.Confidence):
			if c.Household.ID < best.Household.ID {
				best = c
			}
			tied = true
		}
	}
	best.Ambiguous = tied
	return best
}
