package backfill

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
)

// SQLiteStore implements SourceStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SourceStore over an opened SQLite database.
func NewSQLiteStore(sqldb *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: sqldb}
}

func (s *SQLiteStore) ListUnlinked(ctx context.Context, table string, agencyID int64) ([]SourceRow, error) {
	if !validTable(table) {
		return nil, eris.Errorf("backfill: unknown table %q", table)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agency_id, first_name, last_name, postal_code,
		       phone_raw, email, street, city, state, created_at
		FROM `+table+`
		WHERE agency_id = ? AND contact_id IS NULL
		ORDER BY id`,
		agencyID)
	if err != nil {
		return nil, eris.Wrapf(err, "backfill: list unlinked %s", table)
	}
	defer rows.Close()

	var out []SourceRow
	for rows.Next() {
		var row SourceRow
		var street, city, state sql.NullString
		if err := rows.Scan(
			&row.ID, &row.AgencyID, &row.FirstName, &row.LastName, &row.PostalCode,
			&row.PhoneRaw, &row.Email, &street, &city, &state, &row.CreatedAt,
		); err != nil {
			return nil, eris.Wrapf(err, "backfill: scan %s row", table)
		}
		row.Street, row.City, row.State = street.String, city.String, state.String
		out = append(out, row)
	}
	return out, eris.Wrapf(rows.Err(), "backfill: iterate %s", table)
}

func (s *SQLiteStore) LinkContact(ctx context.Context, table string, rowID, contactID int64) error {
	if !validTable(table) {
		return eris.Errorf("backfill: unknown table %q", table)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+` SET contact_id = ?2
		WHERE id = ?1 AND contact_id IS NULL`,
		rowID, contactID)
	if err != nil {
		return eris.Wrapf(err, "backfill: link %s row %d", table, rowID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("backfill: %s row %d not found or already linked", table, rowID)
	}
	return nil
}

func (s *SQLiteStore) CountUnlinked(ctx context.Context, agencyID int64) (map[string]int64, error) {
	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		var n int64
		err := s.db.QueryRowContext(ctx, `
			SELECT count(*) FROM `+table+`
			WHERE agency_id = ? AND contact_id IS NULL`,
			agencyID,
		).Scan(&n)
		if err != nil {
			return nil, eris.Wrapf(err, "backfill: count unlinked %s", table)
		}
		counts[table] = n
	}
	return counts, nil
}
