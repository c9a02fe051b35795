package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/coverpoint/identity-cli/internal/db"
)

// PostgresStore implements ContactStore using pgx. Phone and email sets are
// TEXT[] columns; appends are guarded in SQL so they are atomic under
// concurrent writers.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const contactColumns = `id, agency_id, first_name, last_name, postal_code, household_key,
		phones, emails, street, city, state, created_at, updated_at`

// CreateContact inserts a new contact and sets its ID. If another writer
// already holds the (agency, household key) slot, returns ErrContactExists.
func (s *PostgresStore) CreateContact(ctx context.Context, c *Contact) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO contacts (
			agency_id, first_name, last_name, postal_code, household_key,
			phones, emails, street, city, state
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, '')
		)
		ON CONFLICT (agency_id, household_key) DO NOTHING
		RETURNING id, created_at, updated_at`,
		c.AgencyID, c.FirstName, c.LastName, c.PostalCode, c.HouseholdKey,
		emptyIfNil(c.Phones), emptyIfNil(c.Emails), c.Street, c.City, c.State,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrContactExists
		}
		return eris.Wrap(err, "identity: insert contact")
	}
	return nil
}

// GetContact fetches a contact by ID. Returns nil when not found.
func (s *PostgresStore) GetContact(ctx context.Context, id int64) (*Contact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	return scanContact(row)
}

// FindByPhone returns the agency contact whose phone set contains the given
// canonical phone, or nil. Oldest contact wins when history produced more
// than one holder of the same number.
func (s *PostgresStore) FindByPhone(ctx context.Context, agencyID int64, phone string) (*Contact, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+contactColumns+` FROM contacts
		WHERE agency_id = $1 AND $2 = ANY(phones)
		ORDER BY id LIMIT 1`,
		agencyID, phone)
	return scanContact(row)
}

// FindByHouseholdKey returns the agency contact with the exact household key,
// or nil. Empty keys never match.
func (s *PostgresStore) FindByHouseholdKey(ctx context.Context, agencyID int64, key string) (*Contact, error) {
	if key == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+contactColumns+` FROM contacts
		WHERE agency_id = $1 AND household_key = $2`,
		agencyID, key)
	return scanContact(row)
}

// AppendPhone adds a phone to the contact's set only if absent. The guard is
// inside the UPDATE, so two concurrent appenders cannot both insert it.
func (s *PostgresStore) AppendPhone(ctx context.Context, contactID int64, phone string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE contacts
		SET phones = array_append(phones, $2), updated_at = now()
		WHERE id = $1 AND NOT ($2 = ANY(phones))`,
		contactID, phone)
	return eris.Wrapf(err, "identity: append phone to contact %d", contactID)
}

// AppendEmail adds an email to the contact's set only if absent.
func (s *PostgresStore) AppendEmail(ctx context.Context, contactID int64, email string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE contacts
		SET emails = array_append(emails, $2), updated_at = now()
		WHERE id = $1 AND NOT ($2 = ANY(emails))`,
		contactID, email)
	return eris.Wrapf(err, "identity: append email to contact %d", contactID)
}

// FillAddress sets address fields only where the contact has no value yet.
func (s *PostgresStore) FillAddress(ctx context.Context, contactID int64, street, city, state, postalCode string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE contacts SET
			street      = COALESCE(street, NULLIF($2, '')),
			city        = COALESCE(city, NULLIF($3, '')),
			state       = COALESCE(state, NULLIF($4, '')),
			postal_code = CASE WHEN postal_code = '' THEN $5 ELSE postal_code END,
			updated_at  = now()
		WHERE id = $1`,
		contactID, street, city, state, postalCode)
	return eris.Wrapf(err, "identity: fill address on contact %d", contactID)
}

// scanContact scans a contact row, mapping pgx.ErrNoRows to (nil, nil).
func scanContact(row pgx.Row) (*Contact, error) {
	var c Contact
	var street, city, state *string
	err := row.Scan(
		&c.ID, &c.AgencyID, &c.FirstName, &c.LastName, &c.PostalCode, &c.HouseholdKey,
		&c.Phones, &c.Emails, &street, &city, &state, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "identity: scan contact")
	}
	if street != nil {
		c.Street = *street
	}
	if city != nil {
		c.City = *city
	}
	if state != nil {
		c.State = *state
	}
	return &c, nil
}

// emptyIfNil keeps TEXT[] columns non-null for brand-new contacts.
func emptyIfNil(set []string) []string {
	if set == nil {
		return []string{}
	}
	return set
}
