package backfill

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coverpoint/identity-cli/internal/activity"
	"github.com/coverpoint/identity-cli/internal/db"
	"github.com/coverpoint/identity-cli/internal/identity"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type testEnv struct {
	sqldb        *sql.DB
	orchestrator *Orchestrator
	contacts     *identity.SQLiteStore
	sources      *SQLiteStore
	activities   *activity.SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sqldb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })
	require.NoError(t, db.MigrateSQLite(context.Background(), sqldb))

	contacts := identity.NewSQLiteStore(sqldb)
	sources := NewSQLiteStore(sqldb)
	activities := activity.NewSQLiteStore(sqldb)
	logger := activity.NewLogger(activities)
	resolver := identity.NewResolver(contacts)

	return &testEnv{
		sqldb:        sqldb,
		orchestrator: NewOrchestrator(sources, contacts, resolver, logger, nil, 2),
		contacts:     contacts,
		sources:      sources,
		activities:   activities,
	}
}

func (e *testEnv) seedRow(t *testing.T, table string, first, last, zip, phone string, createdAt time.Time) {
	t.Helper()
	_, err := e.sqldb.Exec(`
		INSERT INTO `+table+` (agency_id, first_name, last_name, postal_code, phone_raw, created_at)
		VALUES (1, ?, ?, ?, ?, ?)`,
		first, last, zip, phone, createdAt.UTC())
	require.NoError(t, err)
}

func TestRun_LinksByPhoneToExistingContact(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	existing := &identity.Contact{
		AgencyID: 1, FirstName: "John", LastName: "Smith", PostalCode: "12345",
		HouseholdKey: identity.HouseholdKey("John", "Smith", "12345"),
		Phones:       []string{"5551234567"},
	}
	require.NoError(t, e.contacts.CreateContact(ctx, existing))

	e.seedRow(t, TableLeads, "Johnny", "Smyth", "99999", "(555) 123-4567", time.Now())

	report, err := e.orchestrator.Run(ctx, 1, TableLeads)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Linked)
	assert.Equal(t, 0, report.Errors)

	rows, err := e.sources.ListUnlinked(ctx, TableLeads, 1)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRun_CreatesContactPerHouseholdKey(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	older := time.Now().Add(-48 * time.Hour)
	newer := time.Now()

	// Two rows for the same family; the newer row carries the phone number
	// and its facts win when the contact is created.
	e.seedRow(t, TableCancellations, "John", "Smith", "12345", "", older)
	e.seedRow(t, TableCancellations, "John", "Smith", "12345", "555-123-4567", newer)

	report, err := e.orchestrator.Run(ctx, 1, TableCancellations)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 2, report.Linked)
	assert.Equal(t, 0, report.Errors)

	contact, err := e.contacts.FindByHouseholdKey(ctx, 1, "SMITH_JOHN_12345")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, []string{"5551234567"}, contact.Phones)
}

func TestRun_RerunIsNoOp(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.seedRow(t, TableRenewals, "John", "Smith", "12345", "555-123-4567", time.Now())

	first, err := e.orchestrator.Run(ctx, 1, TableRenewals)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 1, first.Linked)

	again, err := e.orchestrator.Run(ctx, 1, TableRenewals)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 0, again.Linked)
}

func TestRun_RowWithoutLastNameCountsAsError(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.seedRow(t, TableWinbacks, "John", "", "12345", "", time.Now())

	report, err := e.orchestrator.Run(ctx, 1, TableWinbacks)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 0, report.Linked)
	assert.Equal(t, 1, report.Errors)
	require.NotEmpty(t, report.ErrorSamples)
	assert.Contains(t, report.ErrorSamples[0], "no last name")
}

func TestRun_UnknownTableRejected(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.orchestrator.Run(context.Background(), 1, "households")
	assert.Error(t, err)
}

func TestRun_MirrorsLinkedRowsToTimeline(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.seedRow(t, TableLeads, "John", "Smith", "12345", "555-123-4567", time.Now())

	_, err := e.orchestrator.Run(ctx, 1, TableLeads)
	require.NoError(t, err)

	contact, err := e.contacts.FindByHouseholdKey(ctx, 1, "SMITH_JOHN_12345")
	require.NoError(t, err)
	require.NotNil(t, contact)

	timeline, err := e.activities.ListByContact(ctx, 1, contact.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, activity.SourceBackfill, timeline[0].SourceModule)
	assert.Equal(t, "legacy_row_linked", timeline[0].ActivityType)
	assert.Equal(t, "leads", timeline[0].Subtype)
	assert.Equal(t, "5551234567", timeline[0].Phone)
}

func TestRunAll_MergesTableReports(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.seedRow(t, TableLeads, "John", "Smith", "12345", "555-123-4567", time.Now())
	e.seedRow(t, TableCancellations, "Jane", "Doe", "54321", "555-999-0000", time.Now())
	e.seedRow(t, TableRenewals, "John", "Smith", "12345", "555-123-4567", time.Now())

	report, err := e.orchestrator.RunAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 3, report.Linked)
	assert.Equal(t, 0, report.Errors)
	// Smith appears in two tables but only one contact is created.
	assert.Equal(t, 2, report.Created)
}

func TestRunAll_StopsOnCancelledContext(t *testing.T) {
	e := newTestEnv(t)

	e.seedRow(t, TableLeads, "John", "Smith", "12345", "555-123-4567", time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.orchestrator.RunAll(ctx, 1)
	assert.Error(t, err)
}
