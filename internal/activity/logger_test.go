package activity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coverpoint/identity-cli/internal/db"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestLogger(t *testing.T) (*Logger, *SQLiteStore) {
	t.Helper()
	sqldb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })
	require.NoError(t, db.MigrateSQLite(context.Background(), sqldb))

	// Activities reference contacts; seed one.
	_, err = sqldb.Exec(`INSERT INTO contacts (agency_id, last_name, household_key) VALUES (1, 'Smith', 'SMITH_UNKNOWN_00000')`)
	require.NoError(t, err)

	store := NewSQLiteStore(sqldb)
	return NewLogger(store), store
}

func TestLog_AssignsIDAndNormalizesPhone(t *testing.T) {
	logger, store := newTestLogger(t)
	ctx := context.Background()

	entry := &Activity{
		AgencyID:     1,
		ContactID:    1,
		SourceModule: SourceLeadIntake,
		ActivityType: "call",
		Phone:        "(555) 123-4567",
		Outcome:      "reached",
	}
	id, err := logger.Log(ctx, entry)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, "5551234567", entry.Phone)

	timeline, err := store.ListByContact(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, id, timeline[0].ID)
	assert.Equal(t, "5551234567", timeline[0].Phone)
}

func TestLog_KeepsUnparseablePhoneVerbatim(t *testing.T) {
	logger, _ := newTestLogger(t)

	entry := &Activity{
		AgencyID:     1,
		ContactID:    1,
		SourceModule: SourceWinback,
		ActivityType: "call",
		Phone:        "ext. 42",
	}
	_, err := logger.Log(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, "ext. 42", entry.Phone)
}

func TestLog_Validation(t *testing.T) {
	logger, _ := newTestLogger(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		entry Activity
	}{
		{"missing agency", Activity{ContactID: 1, SourceModule: SourceSales, ActivityType: "call"}},
		{"missing contact", Activity{AgencyID: 1, SourceModule: SourceSales, ActivityType: "call"}},
		{"unknown source module", Activity{AgencyID: 1, ContactID: 1, SourceModule: "billing", ActivityType: "call"}},
		{"missing activity type", Activity{AgencyID: 1, ContactID: 1, SourceModule: SourceSales, ActivityType: " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := logger.Log(ctx, &tt.entry)
			assert.Error(t, err)
		})
	}
}

func TestLogBatch_InsertsAll(t *testing.T) {
	logger, store := newTestLogger(t)
	ctx := context.Background()

	entries := []Activity{
		{AgencyID: 1, ContactID: 1, SourceModule: SourceBackfill, ActivityType: "legacy_row_linked", Subtype: "leads"},
		{AgencyID: 1, ContactID: 1, SourceModule: SourceBackfill, ActivityType: "legacy_row_linked", Subtype: "renewals"},
	}
	n, err := logger.LogBatch(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	timeline, err := store.ListByContact(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, timeline, 2)
}

func TestLogBatch_RejectsWholeBatchOnBadEntry(t *testing.T) {
	logger, store := newTestLogger(t)
	ctx := context.Background()

	entries := []Activity{
		{AgencyID: 1, ContactID: 1, SourceModule: SourceBackfill, ActivityType: "legacy_row_linked"},
		{AgencyID: 1, ContactID: 0, SourceModule: SourceBackfill, ActivityType: "legacy_row_linked"},
	}
	_, err := logger.LogBatch(ctx, entries)
	require.Error(t, err)

	timeline, err := store.ListByContact(ctx, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, timeline)
}

func TestRecorder_WritesSalesActivity(t *testing.T) {
	logger, store := newTestLogger(t)
	recorder := NewRecorder(logger)
	ctx := context.Background()

	require.NoError(t, recorder.Record(ctx, 1, 1, "sale_linked", "sale 4 linked"))

	timeline, err := store.ListByContact(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, SourceSales, timeline[0].SourceModule)
	assert.Equal(t, "sale_linked", timeline[0].ActivityType)
	assert.Equal(t, "sale 4 linked", timeline[0].Notes)
}
