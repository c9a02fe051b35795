package identity

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

func newTestResolver(t *testing.T) (*Resolver, *SQLiteStore) {
	t.Helper()
	sqldb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })
	require.NoError(t, db.MigrateSQLite(context.Background(), sqldb))

	store := NewSQLiteStore(sqldb)
	return NewResolver(store), store
}

func TestResolve_CreatesNewContact(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	contact, created, err := r.Resolve(ctx, ResolveInput{
		AgencyID:   1,
		FirstName:  "John",
		LastName:   "Smith",
		PostalCode: "12345",
		Phone:      "(555) 123-4567",
		Email:      "John.Smith@Example.com",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, contact.ID)
	assert.Equal(t, "SMITH_JOHN_12345", contact.HouseholdKey)
	assert.Equal(t, []string{"5551234567"}, contact.Phones)
	assert.Equal(t, []string{"john.smith@example.com"}, contact.Emails)
}

func TestResolve_Idempotent(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	in := ResolveInput{
		AgencyID:   1,
		FirstName:  "John",
		LastName:   "Smith",
		PostalCode: "12345",
		Phone:      "555-123-4567",
		Email:      "john@example.com",
	}

	first, created, err := r.Resolve(ctx, in)
	require.NoError(t, err)
	require.True(t, created)

	for i := 0; i < 3; i++ {
		again, created, err := r.Resolve(ctx, in)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, []string{"5551234567"}, again.Phones)
		assert.Equal(t, []string{"john@example.com"}, again.Emails)
	}
}

func TestResolve_MatchByPhone_IgnoresNameDifferences(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	first, _, err := r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith", PostalCode: "12345",
		Phone: "555-123-4567",
	})
	require.NoError(t, err)

	// Same phone under a misspelled name and different zip still matches.
	again, created, err := r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "Jon", LastName: "Smyth", PostalCode: "99999",
		Phone: "(555) 123-4567",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
}

func TestResolve_PhoneTakesPriorityOverHouseholdKey(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	byPhone, _, err := r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "Jane", LastName: "Doe", PostalCode: "11111",
		Phone: "555-000-1111",
	})
	require.NoError(t, err)

	byKey, _, err := r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith", PostalCode: "12345",
	})
	require.NoError(t, err)
	require.NotEqual(t, byPhone.ID, byKey.ID)

	// Input matching byKey's household key but byPhone's number resolves to
	// the phone match.
	got, created, err := r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith", PostalCode: "12345",
		Phone: "555-000-1111",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, byPhone.ID, got.ID)
}

func TestResolve_MatchByHouseholdKey_MergesNewChannels(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	first, _, err := r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith", PostalCode: "12345",
		Phone: "555-123-4567",
	})
	require.NoError(t, err)

	// New phone and email arrive on the same household.
	again, created, err := r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith", PostalCode: "12345",
		Phone: "555-999-8888", Email: "john@example.com",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.ElementsMatch(t, []string{"5551234567", "5559998888"}, again.Phones)
	assert.Equal(t, []string{"john@example.com"}, again.Emails)
}

func TestResolve_PhoneSetGrowsMonotonically(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	in := ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith", PostalCode: "12345",
	}
	first, _, err := r.Resolve(ctx, in)
	require.NoError(t, err)

	phones := []string{"555-123-4567", "555-999-8888", "555-123-4567"}
	for _, phone := range phones {
		in.Phone = phone
		_, _, err := r.Resolve(ctx, in)
		require.NoError(t, err)
	}

	stored, err := store.GetContact(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"5551234567", "5559998888"}, stored.Phones)
}

func TestResolve_FillsMissingAddressOnPhoneMatch(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	first, _, err := r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith",
		Phone: "555-123-4567",
	})
	require.NoError(t, err)
	assert.Empty(t, first.Street)

	_, _, err = r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith",
		Phone: "555-123-4567",
		Street: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701",
	})
	require.NoError(t, err)

	stored, err := store.GetContact(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", stored.Street)
	assert.Equal(t, "Austin", stored.City)
	assert.Equal(t, "TX", stored.State)
	assert.Equal(t, "78701", stored.PostalCode)

	// Existing values are never overwritten.
	_, _, err = r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith",
		Phone: "555-123-4567", Street: "2 Elm St",
	})
	require.NoError(t, err)

	stored, err = store.GetContact(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", stored.Street)
}

func TestResolve_AgenciesAreIsolated(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	one, created, err := r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith", PostalCode: "12345",
		Phone: "555-123-4567",
	})
	require.NoError(t, err)
	require.True(t, created)

	two, created, err := r.Resolve(ctx, ResolveInput{
		AgencyID: 2, FirstName: "John", LastName: "Smith", PostalCode: "12345",
		Phone: "555-123-4567",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, one.ID, two.ID)
}

func TestResolve_Validation(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	_, _, err := r.Resolve(ctx, ResolveInput{LastName: "Smith"})
	assert.Error(t, err)

	_, _, err = r.Resolve(ctx, ResolveInput{AgencyID: 1, LastName: "  "})
	assert.Error(t, err)
}

func TestResolve_InvalidPhoneStillResolvesByKey(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	contact, created, err := r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith", PostalCode: "12345",
		Phone: "not a phone",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, contact.Phones)

	again, created, err := r.Resolve(ctx, ResolveInput{
		AgencyID: 1, FirstName: "John", LastName: "Smith", PostalCode: "12345",
		Phone: "555-1234",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, contact.ID, again.ID)
}
