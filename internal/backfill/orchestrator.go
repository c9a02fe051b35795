package backfill

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/coverpoint/identity-cli/internal/activity"
	"github.com/coverpoint/identity-cli/internal/identity"
)

// maxErrorSamples caps how many per-row failures a Report carries verbatim.
const maxErrorSamples = 5

// Report aggregates one backfill run.
type Report struct {
	Table        string   `json:"table,omitempty"`
	Processed    int      `json:"processed"`
	Created      int      `json:"created"`
	Linked       int      `json:"linked"`
	Errors       int      `json:"errors"`
	ErrorSamples []string `json:"error_samples,omitempty"`
}

func (r *Report) recordError(rowID int64, err error) {
	r.Errors++
	if len(r.ErrorSamples) < maxErrorSamples {
		r.ErrorSamples = append(r.ErrorSamples, fmt.Sprintf("row %d: %v", rowID, err))
	}
}

func (r *Report) merge(other *Report) {
	r.Processed += other.Processed
	r.Created += other.Created
	r.Linked += other.Linked
	r.Errors += other.Errors
	for _, s := range other.ErrorSamples {
		if len(r.ErrorSamples) >= maxErrorSamples {
			break
		}
		r.ErrorSamples = append(r.ErrorSamples, other.Table+": "+s)
	}
}

// Orchestrator walks the legacy tables and attaches each row to a contact.
type Orchestrator struct {
	sources     SourceStore
	contacts    identity.ContactStore
	resolver    *identity.Resolver
	logger      *activity.Logger
	limiter     *rate.Limiter
	concurrency int
}

// NewOrchestrator assembles a backfill runner. logger may be nil to skip the
// activity mirror, limiter may be nil for unthrottled runs, and concurrency
// bounds RunAll with a floor of 1.
func NewOrchestrator(sources SourceStore, contacts identity.ContactStore, resolver *identity.Resolver, logger *activity.Logger, limiter *rate.Limiter, concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		sources:     sources,
		contacts:    contacts,
		resolver:    resolver,
		logger:      logger,
		limiter:     limiter,
		concurrency: concurrency,
	}
}

// run carries the mutable state of one table's backfill.
type run struct {
	table  string
	report *Report
	mirror []activity.Activity
	log    *zap.Logger
}

// Run backfills a single legacy table in three passes: link rows whose phone
// already belongs to a contact, resolve a contact per remaining household
// key, then link again now that the targets exist. Re-running over unchanged
// data creates and links nothing.
func (o *Orchestrator) Run(ctx context.Context, agencyID int64, table string) (*Report, error) {
	if !validTable(table) {
		return nil, eris.Errorf("backfill: unknown table %q", table)
	}

	rows, err := o.sources.ListUnlinked(ctx, table, agencyID)
	if err != nil {
		return nil, err
	}

	r := &run{
		table:  table,
		report: &Report{Table: table, Processed: len(rows)},
		log:    zap.L().With(zap.String("table", table), zap.Int64("agency_id", agencyID)),
	}
	r.log.Info("backfill: starting", zap.Int("rows", len(rows)))

	pending, err := o.linkByPhone(ctx, rows, r)
	if err != nil {
		return r.report, err
	}
	if err := o.resolvePending(ctx, agencyID, pending, r); err != nil {
		return r.report, err
	}
	if err := o.relink(ctx, pending, r); err != nil {
		return r.report, err
	}

	if o.logger != nil && len(r.mirror) > 0 {
		if _, err := o.logger.LogBatch(ctx, r.mirror); err != nil {
			r.log.Warn("backfill: activity mirror failed", zap.Error(err))
		}
	}

	r.log.Info("backfill: finished",
		zap.Int("processed", r.report.Processed),
		zap.Int("created", r.report.Created),
		zap.Int("linked", r.report.Linked),
		zap.Int("errors", r.report.Errors))
	return r.report, nil
}

// RunAll backfills every legacy table for the agency, bounded by the
// configured concurrency. Table reports are merged in table order.
func (o *Orchestrator) RunAll(ctx context.Context, agencyID int64) (*Report, error) {
	reports := make([]*Report, len(Tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, table := range Tables {
		g.Go(func() error {
			report, err := o.Run(gctx, agencyID, table)
			reports[i] = report
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := &Report{}
	for _, report := range reports {
		total.merge(report)
	}
	return total, nil
}

// linkByPhone attaches rows whose normalized phone already belongs to a
// contact and returns the rows still unlinked.
func (o *Orchestrator) linkByPhone(ctx context.Context, rows []SourceRow, r *run) ([]SourceRow, error) {
	var pending []SourceRow
	for _, row := range rows {
		if err := o.wait(ctx); err != nil {
			return nil, err
		}

		phone, ok := identity.NormalizePhone(row.PhoneRaw)
		if !ok {
			pending = append(pending, row)
			continue
		}
		contact, err := o.contacts.FindByPhone(ctx, row.AgencyID, phone)
		if err != nil {
			r.report.recordError(row.ID, err)
			r.log.Warn("backfill: phone lookup failed", zap.Int64("row_id", row.ID), zap.Error(err))
			continue
		}
		if contact == nil {
			pending = append(pending, row)
			continue
		}
		o.link(ctx, row, contact.ID, r)
	}
	return pending, nil
}

// resolvePending creates or merges one contact per distinct household key
// among the still-unlinked rows. When several rows share a key, the most
// recently created row's facts win.
func (o *Orchestrator) resolvePending(ctx context.Context, agencyID int64, pending []SourceRow, r *run) error {
	byKey := make(map[string][]SourceRow)
	for _, row := range pending {
		key := identity.HouseholdKey(row.FirstName, row.LastName, row.PostalCode)
		if key == "" {
			r.report.recordError(row.ID, eris.New("backfill: row has no last name"))
			continue
		}
		byKey[key] = append(byKey[key], row)
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := o.wait(ctx); err != nil {
			return err
		}

		group := byKey[key]
		sort.Slice(group, func(i, j int) bool {
			if group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].ID > group[j].ID
			}
			return group[i].CreatedAt.After(group[j].CreatedAt)
		})
		row := group[0]

		_, created, err := o.resolver.Resolve(ctx, identity.ResolveInput{
			AgencyID:   agencyID,
			FirstName:  row.FirstName,
			LastName:   row.LastName,
			PostalCode: row.PostalCode,
			Phone:      row.PhoneRaw,
			Email:      row.Email,
			Street:     row.Street,
			City:       row.City,
			State:      row.State,
		})
		if err != nil {
			r.report.recordError(row.ID, err)
			r.log.Warn("backfill: resolve failed", zap.Int64("row_id", row.ID), zap.Error(err))
			continue
		}
		if created {
			r.report.Created++
		}
	}
	return nil
}

// relink re-walks the pending rows now that the resolve pass has created
// their contacts.
func (o *Orchestrator) relink(ctx context.Context, pending []SourceRow, r *run) error {
	for _, row := range pending {
		if err := o.wait(ctx); err != nil {
			return err
		}

		contact, err := o.findContact(ctx, row)
		if err != nil {
			r.report.recordError(row.ID, err)
			r.log.Warn("backfill: relink lookup failed", zap.Int64("row_id", row.ID), zap.Error(err))
			continue
		}
		if contact == nil {
			// resolvePending already counted rows that could not
			// form a key; anything else here is unexpected.
			continue
		}
		o.link(ctx, row, contact.ID, r)
	}
	return nil
}

func (o *Orchestrator) findContact(ctx context.Context, row SourceRow) (*identity.Contact, error) {
	if phone, ok := identity.NormalizePhone(row.PhoneRaw); ok {
		contact, err := o.contacts.FindByPhone(ctx, row.AgencyID, phone)
		if err != nil || contact != nil {
			return contact, err
		}
	}
	key := identity.HouseholdKey(row.FirstName, row.LastName, row.PostalCode)
	if key == "" {
		return nil, nil
	}
	return o.contacts.FindByHouseholdKey(ctx, row.AgencyID, key)
}

func (o *Orchestrator) link(ctx context.Context, row SourceRow, contactID int64, r *run) {
	if err := o.sources.LinkContact(ctx, r.table, row.ID, contactID); err != nil {
		r.report.recordError(row.ID, err)
		r.log.Warn("backfill: link failed", zap.Int64("row_id", row.ID), zap.Error(err))
		return
	}
	r.report.Linked++
	r.mirror = append(r.mirror, activity.Activity{
		AgencyID:     row.AgencyID,
		ContactID:    contactID,
		SourceModule: activity.SourceBackfill,
		ActivityType: "legacy_row_linked",
		Subtype:      strings.TrimPrefix(r.table, "legacy_"),
		Phone:        row.PhoneRaw,
		Notes:        fmt.Sprintf("backfilled from %s row %d", r.table, row.ID),
	})
}

func (o *Orchestrator) wait(ctx context.Context) error {
	if o.limiter != nil {
		return o.limiter.Wait(ctx)
	}
	return ctx.Err()
}
