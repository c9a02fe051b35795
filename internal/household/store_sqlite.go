package household

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// saleDateLayout keeps sale dates as plain dates so the sale_links dedup
// tuple compares bytewise.
const saleDateLayout = "2006-01-02"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a Store over an opened SQLite database.
func NewSQLiteStore(sqldb *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: sqldb}
}

func (s *SQLiteStore) CreateHousehold(ctx context.Context, h *Household) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO households (
			agency_id, contact_id, household_key, status, attention_reason,
			lead_source, conflicting_lead_source, team_member, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.AgencyID, h.ContactID, h.HouseholdKey, string(statusOrOpen(h.Status)),
		string(h.AttentionReason), h.LeadSource, h.ConflictingLeadSource, h.TeamMember, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "household: insert household")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "household: insert household id")
	}
	h.ID = id
	h.Status = statusOrOpen(h.Status)
	h.CreatedAt = now
	h.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetHousehold(ctx context.Context, id int64) (*Household, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agency_id, contact_id, household_key, status, attention_reason,
		       lead_source, conflicting_lead_source, team_member, created_at, updated_at
		FROM households WHERE id = ?`, id)
	return scanSQLiteHousehold(row)
}

func (s *SQLiteStore) ListOpenByContact(ctx context.Context, agencyID, contactID int64) ([]Household, error) {
	return s.listHouseholds(ctx, `
		SELECT id, agency_id, contact_id, household_key, status, attention_reason,
		       lead_source, conflicting_lead_source, team_member, created_at, updated_at
		FROM households
		WHERE agency_id = ? AND contact_id = ? AND status IN ('open', 'quoted')
		ORDER BY id`,
		agencyID, contactID)
}

func (s *SQLiteStore) ListOpenByHouseholdKey(ctx context.Context, agencyID int64, key string) ([]Household, error) {
	return s.listHouseholds(ctx, `
		SELECT id, agency_id, contact_id, household_key, status, attention_reason,
		       lead_source, conflicting_lead_source, team_member, created_at, updated_at
		FROM households
		WHERE agency_id = ? AND household_key = ? AND status IN ('open', 'quoted')
		ORDER BY id`,
		agencyID, key)
}

func (s *SQLiteStore) MarkQuoted(ctx context.Context, householdID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE households SET status = 'quoted', updated_at = ?
		WHERE id = ? AND status = 'open'`,
		time.Now().UTC(), householdID)
	if err != nil {
		return eris.Wrapf(err, "household: mark quoted %d", householdID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("household: not open: %d", householdID)
	}
	return nil
}

func (s *SQLiteStore) MarkSold(ctx context.Context, householdID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE households
		SET status = 'sold', attention_reason = '', conflicting_lead_source = '', updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), householdID)
	if err != nil {
		return eris.Wrapf(err, "household: mark sold %d", householdID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("household not found: %d", householdID)
	}
	return nil
}

func (s *SQLiteStore) FlagAttention(ctx context.Context, householdID int64, reason AttentionReason, conflictingSource string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE households SET
			attention_reason = ?2,
			conflicting_lead_source = CASE WHEN ?3 <> '' THEN ?3 ELSE conflicting_lead_source END,
			updated_at = ?4
		WHERE id = ?1`,
		householdID, string(reason), conflictingSource, time.Now().UTC())
	if err != nil {
		return eris.Wrapf(err, "household: flag attention %d", householdID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("household not found: %d", householdID)
	}
	return nil
}

func (s *SQLiteStore) BackfillAttribution(ctx context.Context, householdID int64, teamMember, leadSource string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE households SET
			team_member = CASE WHEN team_member = '' THEN ?2 ELSE team_member END,
			lead_source = CASE WHEN lead_source = '' THEN ?3 ELSE lead_source END,
			updated_at  = ?4
		WHERE id = ?1`,
		householdID, teamMember, leadSource, time.Now().UTC())
	return eris.Wrapf(err, "household: backfill attribution %d", householdID)
}

func (s *SQLiteStore) SetContact(ctx context.Context, householdID, contactID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE households SET contact_id = ?2, updated_at = ?3
		WHERE id = ?1 AND contact_id IS NULL`,
		householdID, contactID, time.Now().UTC())
	return eris.Wrapf(err, "household: set contact on %d", householdID)
}

func (s *SQLiteStore) CreateSale(ctx context.Context, sale *Sale) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (
			agency_id, contact_id, sale_date, product_type, premium_cents,
			policy_number, team_member, lead_source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.AgencyID, sale.ContactID, sale.SaleDate.Format(saleDateLayout), sale.ProductType,
		sale.PremiumCents, sale.PolicyNumber, sale.TeamMember, sale.LeadSource, now,
	)
	if err != nil {
		return eris.Wrap(err, "household: insert sale")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "household: insert sale id")
	}
	sale.ID = id
	sale.CreatedAt = now
	return nil
}

func (s *SQLiteStore) GetSale(ctx context.Context, id int64) (*Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agency_id, contact_id, sale_date, product_type, premium_cents,
		       policy_number, team_member, lead_source, created_at
		FROM sales WHERE id = ?`, id)
	sale, err := scanSQLiteSale(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "household: get sale %d", id)
	}
	return sale, nil
}

func (s *SQLiteStore) ListUnlinkedSales(ctx context.Context, agencyID int64) ([]Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.agency_id, s.contact_id, s.sale_date, s.product_type, s.premium_cents,
		       s.policy_number, s.team_member, s.lead_source, s.created_at
		FROM sales s
		LEFT JOIN sale_links sl ON sl.sale_id = s.id
		WHERE s.agency_id = ? AND sl.id IS NULL
		ORDER BY s.id`,
		agencyID)
	if err != nil {
		return nil, eris.Wrap(err, "household: list unlinked sales")
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		sale, err := scanSQLiteSale(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "household: scan sale")
		}
		sales = append(sales, *sale)
	}
	return sales, eris.Wrap(rows.Err(), "household: list unlinked sales iterate")
}

func (s *SQLiteStore) CreateSaleLink(ctx context.Context, l *SaleLink) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sale_links (
			id, household_id, sale_id, sale_date, product_type,
			premium_cents, policy_number, confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.HouseholdID, l.SaleID, l.SaleDate.Format(saleDateLayout), l.ProductType,
		l.PremiumCents, l.PolicyNumber, string(l.Confidence), now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateLink
		}
		return eris.Wrap(err, "household: insert sale link")
	}
	l.CreatedAt = now
	return nil
}

func (s *SQLiteStore) GetLinkBySale(ctx context.Context, saleID int64) (*SaleLink, error) {
	var l SaleLink
	var saleDate, conf string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, household_id, sale_id, sale_date, product_type, premium_cents,
		       policy_number, confidence, created_at
		FROM sale_links WHERE sale_id = ?
		ORDER BY created_at LIMIT 1`,
		saleID,
	).Scan(
		&l.ID, &l.HouseholdID, &l.SaleID, &saleDate, &l.ProductType,
		&l.PremiumCents, &l.PolicyNumber, &conf, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "household: get link for sale %d", saleID)
	}
	l.SaleDate, err = time.Parse(saleDateLayout, saleDate)
	if err != nil {
		return nil, eris.Wrap(err, "household: parse link sale date")
	}
	l.Confidence = Confidence(conf)
	return &l, nil
}

func (s *SQLiteStore) listHouseholds(ctx context.Context, query string, args ...any) ([]Household, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "household: list households")
	}
	defer rows.Close()

	var out []Household
	for rows.Next() {
		var h Household
		var status, reason string
		if err := rows.Scan(
			&h.ID, &h.AgencyID, &h.ContactID, &h.HouseholdKey, &status, &reason,
			&h.LeadSource, &h.ConflictingLeadSource, &h.TeamMember, &h.CreatedAt, &h.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "household: scan household row")
		}
		h.Status = Status(status)
		h.AttentionReason = AttentionReason(reason)
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "household: iterate households")
}

func scanSQLiteHousehold(row *sql.Row) (*Household, error) {
	var h Household
	var status, reason string
	err := row.Scan(
		&h.ID, &h.AgencyID, &h.ContactID, &h.HouseholdKey, &status, &reason,
		&h.LeadSource, &h.ConflictingLeadSource, &h.TeamMember, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "household: scan household")
	}
	h.Status = Status(status)
	h.AttentionReason = AttentionReason(reason)
	return &h, nil
}

func scanSQLiteSale(scan func(dest ...any) error) (*Sale, error) {
	var sale Sale
	var saleDate string
	if err := scan(
		&sale.ID, &sale.AgencyID, &sale.ContactID, &saleDate, &sale.ProductType,
		&sale.PremiumCents, &sale.PolicyNumber, &sale.TeamMember, &sale.LeadSource, &sale.CreatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(saleDateLayout, saleDate)
	if err != nil {
		return nil, eris.Wrap(err, "household: parse sale date")
	}
	sale.SaleDate = parsed
	return &sale, nil
}
