package household

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Recorder mirrors household mutations into the unified activity timeline.
// Implementations live outside this package; a nil Recorder disables
// mirroring.
type Recorder interface {
	Record(ctx context.Context, agencyID, contactID int64, activityType, notes string) error
}

// Linker applies matched sales to households: it writes the linkage record,
// transitions the household to sold, and back-fills attribution.
type Linker struct {
	store    Store
	matcher  *Matcher
	recorder Recorder
}

// NewLinker creates a sale linker. recorder may be nil.
func NewLinker(store Store, matcher *Matcher, recorder Recorder) *Linker {
	return &Linker{store: store, matcher: matcher, recorder: recorder}
}

// Link connects a sale to a household. Inserting the linkage record is the
// idempotency gate: a duplicate (household, sale date, product, premium,
// policy number) is reported as AlreadyLinked and nothing else is touched.
// On a fresh link the household is marked sold, its attention flag cleared,
// and team member / lead source attribution back-filled only where blank.
func (l *Linker) Link(ctx context.Context, h *Household, sale *Sale, conf Confidence) (*LinkResult, error) {
	if h == nil || sale == nil {
		return nil, eris.New("household: link requires a household and a sale")
	}

	link := &SaleLink{
		ID:           uuid.New().String(),
		HouseholdID:  h.ID,
		SaleID:       sale.ID,
		SaleDate:     sale.SaleDate,
		ProductType:  sale.ProductType,
		PremiumCents: sale.PremiumCents,
		PolicyNumber: sale.PolicyNumber,
		Confidence:   conf,
	}

	if err := l.store.CreateSaleLink(ctx, link); err != nil {
		if eris.Is(err, ErrDuplicateLink) {
			return &LinkResult{AlreadyLinked: true}, nil
		}
		return nil, eris.Wrap(err, "household: create sale link")
	}

	if err := l.store.MarkSold(ctx, h.ID); err != nil {
		return nil, eris.Wrapf(err, "household: mark household %d sold", h.ID)
	}

	if sale.TeamMember != "" || sale.LeadSource != "" {
		if err := l.store.BackfillAttribution(ctx, h.ID, sale.TeamMember, sale.LeadSource); err != nil {
			return nil, eris.Wrapf(err, "household: backfill attribution on %d", h.ID)
		}
	}

	l.mirror(ctx, sale, h, "sale_linked",
		fmt.Sprintf("sale %d linked to household %d (%s)", sale.ID, h.ID, conf))

	zap.L().Info("link: sale linked",
		zap.Int64("agency_id", sale.AgencyID),
		zap.Int64("sale_id", sale.ID),
		zap.Int64("household_id", h.ID),
		zap.String("confidence", string(conf)),
	)
	return &LinkResult{Link: link}, nil
}

// ProcessSale runs Match then Link for a recorded sale. Guarded against
// re-processing: a sale that already has a linkage record is a no-op, so a
// sale with several policy lines is linked once. When no confident candidate
// exists the best household is flagged for human review instead of linked.
func (l *Linker) ProcessSale(ctx context.Context, saleID int64) (*LinkResult, error) {
	sale, err := l.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, eris.Wrapf(err, "household: load sale %d", saleID)
	}
	if sale == nil {
		return nil, eris.Errorf("household: sale not found: %d", saleID)
	}

	existing, err := l.store.GetLinkBySale(ctx, saleID)
	if err != nil {
		return nil, eris.Wrapf(err, "household: check existing link for sale %d", saleID)
	}
	if existing != nil {
		return &LinkResult{Link: existing, AlreadyLinked: true}, nil
	}

	candidate, err := l.matcher.Match(ctx, sale)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		zap.L().Debug("link: no candidate for sale", zap.Int64("sale_id", saleID))
		return nil, nil
	}

	if candidate.Ambiguous {
		if err := l.store.FlagAttention(ctx, candidate.Household.ID, AttentionAmbiguousMatch, ""); err != nil {
			return nil, eris.Wrapf(err, "household: flag ambiguous match on %d", candidate.Household.ID)
		}
		return nil, nil
	}
	if candidate.Confidence == ConfidenceWeak {
		if err := l.store.FlagAttention(ctx, candidate.Household.ID, AttentionManualReview, ""); err != nil {
			return nil, eris.Wrapf(err, "household: flag manual review on %d", candidate.Household.ID)
		}
		return nil, nil
	}

	return l.Link(ctx, candidate.Household, sale, candidate.Confidence)
}

// BackfillReport aggregates a manual sale-link backfill over historical
// sales. Unmatched counts sales with no confident candidate (including those
// flagged for human review).
type BackfillReport struct {
	Processed int `json:"processed"`
	Linked    int `json:"linked"`
	Unmatched int `json:"unmatched"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// BackfillSales scans all unmatched historical sales for an agency and runs
// ProcessSale on each. Per-row failures are logged and counted; the batch
// continues. Re-running creates no duplicate linkage records.
func (l *Linker) BackfillSales(ctx context.Context, agencyID int64) (*BackfillReport, error) {
	if agencyID == 0 {
		return nil, eris.New("household: agency id is required")
	}

	sales, err := l.store.ListUnlinkedSales(ctx, agencyID)
	if err != nil {
		return nil, eris.Wrap(err, "household: list unlinked sales")
	}

	log := zap.L().With(zap.Int64("agency_id", agencyID))
	report := &BackfillReport{}
	for i := range sales {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "household: sale backfill interrupted")
		}
		report.Processed++
		result, err := l.ProcessSale(ctx, sales[i].ID)
		switch {
		case err != nil:
			report.Errors++
			log.Warn("sale backfill: row failed",
				zap.Int64("sale_id", sales[i].ID), zap.Error(err))
		case result == nil:
			report.Unmatched++
		case result.AlreadyLinked:
			report.Skipped++
		default:
			report.Linked++
		}
	}

	log.Info("sale backfill complete",
		zap.Int("processed", report.Processed),
		zap.Int("linked", report.Linked),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

// mirror writes an activity entry when a recorder is configured and the sale
// has a resolved contact.
func (l *Linker) mirror(ctx context.Context, sale *Sale, h *Household, activityType, notes string) {
	if l.recorder == nil || sale.ContactID == nil {
		return
	}
	if err := l.recorder.Record(ctx, sale.AgencyID, *sale.ContactID, activityType, notes); err != nil {
		zap.L().Warn("link: activity mirror failed",
			zap.Int64("sale_id", sale.ID),
			zap.Int64("household_id", h.ID),
			zap.Error(err),
		)
	}
}
