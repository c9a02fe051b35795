package household

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverpoint/identity-cli/internal/activity"
	"github.com/coverpoint/identity-cli/internal/db"
	"github.com/coverpoint/identity-cli/internal/identity"
)

// fixture wires the full resolve / intake / link graph over one SQLite
// database, the way the CLI assembles it.
type fixture struct {
	resolver   *identity.Resolver
	intake     *Intake
	linker     *Linker
	store      *SQLiteStore
	contacts   *identity.SQLiteStore
	activities *activity.SQLiteStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sqldb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })
	require.NoError(t, db.MigrateSQLite(context.Background(), sqldb))

	store := NewSQLiteStore(sqldb)
	contacts := identity.NewSQLiteStore(sqldb)
	activities := activity.NewSQLiteStore(sqldb)
	logger := activity.NewLogger(activities)
	matcher := NewMatcher(store, contacts, nil)

	return &fixture{
		resolver:   identity.NewResolver(contacts),
		intake:     NewIntake(store, nil),
		linker:     NewLinker(store, matcher, activity.NewRecorder(logger)),
		store:      store,
		contacts:   contacts,
		activities: activities,
	}
}

// A lead arrives by web form, is quoted, then the same person appears in the
// sales feed under a differently formatted phone number. The sale must land
// on the household the lead opened, and the full journey must read from one
// contact's activity timeline.
func TestScenario_LeadQuoteSaleJourney(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lead, created, err := f.resolver.Resolve(ctx, identity.ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith", PostalCode: "12345",
		Phone: "(555) 123-4567", Email: "john@example.com",
	})
	require.NoError(t, err)
	require.True(t, created)

	h, err := f.intake.RecordLead(ctx, lead, "web_form", "alice")
	require.NoError(t, err)
	require.NoError(t, f.intake.RecordQuote(ctx, h.ID))

	// The sales feed spells the same person slightly differently.
	seller, created, err := f.resolver.Resolve(ctx, identity.ResolveInput{
		AgencyID: 1, FirstName: "Jon", LastName: "Smith", PostalCode: "12345",
		Phone: "555.123.4567",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, lead.ID, seller.ID)

	sale := &Sale{
		AgencyID:     1,
		ContactID:    &seller.ID,
		SaleDate:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		ProductType:  "home",
		PremiumCents: 250000,
		PolicyNumber: "HP-42",
		TeamMember:   "bob",
		LeadSource:   "web_form",
	}
	require.NoError(t, f.store.CreateSale(ctx, sale))

	result, err := f.linker.ProcessSale(ctx, sale.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, h.ID, result.Link.HouseholdID)
	assert.Equal(t, ConfidenceExact, result.Link.Confidence)

	stored, err := f.store.GetHousehold(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSold, stored.Status)
	assert.Equal(t, "web_form", stored.LeadSource)
	assert.Equal(t, "alice", stored.TeamMember)

	// The sale was mirrored onto the contact's timeline.
	timeline, err := f.activities.ListByContact(ctx, 1, lead.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, activity.SourceSales, timeline[0].SourceModule)
	assert.Equal(t, "sale_linked", timeline[0].ActivityType)
}

// Two vendors both claim the same family. The second claim must not steal
// the household: it is flagged for a human and both sources stay recorded.
func TestScenario_CompetingLeadSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, err := f.resolver.Resolve(ctx, identity.ResolveInput{
		AgencyID: 1, FirstName: "Jane", LastName: "Doe", PostalCode: "54321",
		Phone: "555-777-1234",
	})
	require.NoError(t, err)

	h, err := f.intake.RecordLead(ctx, first, "vendor_a", "alice")
	require.NoError(t, err)

	// Vendor B sends the same person with no phone; the household key is the
	// only way back to the contact.
	second, created, err := f.resolver.Resolve(ctx, identity.ResolveInput{
		AgencyID: 1, FirstName: "Jane", LastName: "Doe", PostalCode: "54321",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	again, err := f.intake.RecordLead(ctx, second, "vendor_b", "bob")
	require.NoError(t, err)
	assert.Equal(t, h.ID, again.ID)

	stored, err := f.store.GetHousehold(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, AttentionSourceConflict, stored.AttentionReason)
	assert.Equal(t, "vendor_a", stored.LeadSource)
	assert.Equal(t, "vendor_b", stored.ConflictingLeadSource)
	assert.Equal(t, StatusOpen, stored.Status)
}

// A sale with several policy lines produces duplicate feed rows; only one
// linkage record may exist afterwards.
func TestScenario_MultiLineSaleLinksOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	contact, _, err := f.resolver.Resolve(ctx, identity.ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith", PostalCode: "12345",
		Phone: "555-123-4567",
	})
	require.NoError(t, err)

	_, err = f.intake.RecordLead(ctx, contact, "web_form", "alice")
	require.NoError(t, err)

	mkSale := func() *Sale {
		sale := &Sale{
			AgencyID:     1,
			ContactID:    &contact.ID,
			SaleDate:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			ProductType:  "auto",
			PremiumCents: 90000,
			PolicyNumber: "AU-7",
			LeadSource:   "web_form",
		}
		require.NoError(t, f.store.CreateSale(ctx, sale))
		return sale
	}

	one := mkSale()
	two := mkSale()

	r1, err := f.linker.ProcessSale(ctx, one.ID)
	require.NoError(t, err)
	assert.False(t, r1.AlreadyLinked)
	household := r1.Link.HouseholdID

	// The second row arrives after the household moved to sold, so it no
	// longer matches anything and stays unlinked.
	r2, err := f.linker.ProcessSale(ctx, two.ID)
	require.NoError(t, err)
	assert.Nil(t, r2)

	link, err := f.store.GetLinkBySale(ctx, two.ID)
	require.NoError(t, err)
	assert.Nil(t, link)

	// Even linking by hand cannot produce a second record for the tuple.
	h, err := f.store.GetHousehold(ctx, household)
	require.NoError(t, err)
	manual, err := f.linker.Link(ctx, h, two, ConfidenceExact)
	require.NoError(t, err)
	assert.True(t, manual.AlreadyLinked)
}
