package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// SQLiteStore implements ContactStore using modernc.org/sqlite. Phone and
// email sets are JSON arrays; appends are guarded by json_each lookups inside
// a single UPDATE so they stay atomic under concurrent writers.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a ContactStore over an opened SQLite database.
func NewSQLiteStore(sqldb *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: sqldb}
}

func (s *SQLiteStore) CreateContact(ctx context.Context, c *Contact) error {
	phones, err := json.Marshal(emptyIfNil(c.Phones))
	if err != nil {
		return eris.Wrap(err, "identity: marshal phones")
	}
	emails, err := json.Marshal(emptyIfNil(c.Emails))
	if err != nil {
		return eris.Wrap(err, "identity: marshal emails")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (
			agency_id, first_name, last_name, postal_code, household_key,
			phones, emails, street, city, state, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?)
		ON CONFLICT (agency_id, household_key) DO NOTHING`,
		c.AgencyID, c.FirstName, c.LastName, c.PostalCode, c.HouseholdKey,
		string(phones), string(emails), c.Street, c.City, c.State, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "identity: insert contact")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "identity: insert contact rows affected")
	}
	if rows == 0 {
		return ErrContactExists
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "identity: insert contact id")
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetContact(ctx context.Context, id int64) (*Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agency_id, first_name, last_name, postal_code, household_key,
		       phones, emails, street, city, state, created_at, updated_at
		FROM contacts WHERE id = ?`, id)
	return scanSQLiteContact(row)
}

func (s *SQLiteStore) FindByPhone(ctx context.Context, agencyID int64, phone string) (*Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agency_id, first_name, last_name, postal_code, household_key,
		       phones, emails, street, city, state, created_at, updated_at
		FROM contacts
		WHERE agency_id = ?1
		  AND EXISTS (SELECT 1 FROM json_each(contacts.phones) WHERE value = ?2)
		ORDER BY id LIMIT 1`,
		agencyID, phone)
	return scanSQLiteContact(row)
}

func (s *SQLiteStore) FindByHouseholdKey(ctx context.Context, agencyID int64, key string) (*Contact, error) {
	if key == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agency_id, first_name, last_name, postal_code, household_key,
		       phones, emails, street, city, state, created_at, updated_at
		FROM contacts
		WHERE agency_id = ? AND household_key = ?`,
		agencyID, key)
	return scanSQLiteContact(row)
}

func (s *SQLiteStore) AppendPhone(ctx context.Context, contactID int64, phone string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET phones = json_insert(phones, '$[#]', ?2), updated_at = ?3
		WHERE id = ?1
		  AND NOT EXISTS (SELECT 1 FROM json_each(contacts.phones) WHERE value = ?2)`,
		contactID, phone, time.Now().UTC())
	return eris.Wrapf(err, "identity: append phone to contact %d", contactID)
}

func (s *SQLiteStore) AppendEmail(ctx context.Context, contactID int64, email string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET emails = json_insert(emails, '$[#]', ?2), updated_at = ?3
		WHERE id = ?1
		  AND NOT EXISTS (SELECT 1 FROM json_each(contacts.emails) WHERE value = ?2)`,
		contactID, email, time.Now().UTC())
	return eris.Wrapf(err, "identity: append email to contact %d", contactID)
}

func (s *SQLiteStore) FillAddress(ctx context.Context, contactID int64, street, city, state, postalCode string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contacts SET
			street      = COALESCE(street, NULLIF(?2, '')),
			city        = COALESCE(city, NULLIF(?3, '')),
			state       = COALESCE(state, NULLIF(?4, '')),
			postal_code = CASE WHEN postal_code = '' THEN ?5 ELSE postal_code END,
			updated_at  = ?6
		WHERE id = ?1`,
		contactID, street, city, state, postalCode, time.Now().UTC())
	return eris.Wrapf(err, "identity: fill address on contact %d", contactID)
}

func scanSQLiteContact(row *sql.Row) (*Contact, error) {
	var c Contact
	var phones, emails string
	var street, city, state sql.NullString
	err := row.Scan(
		&c.ID, &c.AgencyID, &c.FirstName, &c.LastName, &c.PostalCode, &c.HouseholdKey,
		&phones, &emails, &street, &city, &state, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "identity: scan contact")
	}
	if err := json.Unmarshal([]byte(phones), &c.Phones); err != nil {
		return nil, eris.Wrap(err, "identity: unmarshal phones")
	}
	if err := json.Unmarshal([]byte(emails), &c.Emails); err != nil {
		return nil, eris.Wrap(err, "identity: unmarshal emails")
	}
	c.Street = street.String
	c.City = city.String
	c.State = state.String
	return &c, nil
}
