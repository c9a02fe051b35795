package backfill

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/coverpoint/identity-cli/internal/db"
)

const sourceColumns = `id, agency_id, first_name, last_name, postal_code,
	phone_raw, email, street, city, state, created_at`

// PostgresStore implements SourceStore using pgx. Table names are
// interpolated only after validation against the fixed whitelist.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a SourceStore over a pgx pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ListUnlinked(ctx context.Context, table string, agencyID int64) ([]SourceRow, error) {
	if !validTable(table) {
		return nil, eris.Errorf("backfill: unknown table %q", table)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+sourceColumns+`
		FROM `+table+`
		WHERE agency_id = $1 AND contact_id IS NULL
		ORDER BY id`,
		agencyID)
	if err != nil {
		return nil, eris.Wrapf(err, "backfill: list unlinked %s", table)
	}
	defer rows.Close()

	var out []SourceRow
	for rows.Next() {
		var row SourceRow
		var street, city, state *string
		if err := rows.Scan(
			&row.ID, &row.AgencyID, &row.FirstName, &row.LastName, &row.PostalCode,
			&row.PhoneRaw, &row.Email, &street, &city, &state, &row.CreatedAt,
		); err != nil {
			return nil, eris.Wrapf(err, "backfill: scan %s row", table)
		}
		row.Street, row.City, row.State = deref(street), deref(city), deref(state)
		out = append(out, row)
	}
	return out, eris.Wrapf(rows.Err(), "backfill: iterate %s", table)
}

func (s *PostgresStore) LinkContact(ctx context.Context, table string, rowID, contactID int64) error {
	if !validTable(table) {
		return eris.Errorf("backfill: unknown table %q", table)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+table+` SET contact_id = $2
		WHERE id = $1 AND contact_id IS NULL`,
		rowID, contactID)
	if err != nil {
		return eris.Wrapf(err, "backfill: link %s row %d", table, rowID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("backfill: %s row %d not found or already linked", table, rowID)
	}
	return nil
}

func (s *PostgresStore) CountUnlinked(ctx context.Context, agencyID int64) (map[string]int64, error) {
	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		var n int64
		err := s.pool.QueryRow(ctx, `
			SELECT count(*) FROM `+table+`
			WHERE agency_id = $1 AND contact_id IS NULL`,
			agencyID,
		).Scan(&n)
		if err != nil {
			return nil, eris.Wrapf(err, "backfill: count unlinked %s", table)
		}
		counts[table] = n
	}
	return counts, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
