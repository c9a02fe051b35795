package household

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/coverpoint/identity-cli/internal/db"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const householdColumns = `id, agency_id, contact_id, household_key, status, attention_reason,
		lead_source, conflicting_lead_source, team_member, created_at, updated_at`

const saleColumns = `id, agency_id, contact_id, sale_date, product_type, premium_cents,
		policy_number, team_member, lead_source, created_at`

func (s *PostgresStore) CreateHousehold(ctx context.Context, h *Household) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO households (
			agency_id, contact_id, household_key, status, attention_reason,
			lead_source, conflicting_lead_source, team_member
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		h.AgencyID, h.ContactID, h.HouseholdKey, string(statusOrOpen(h.Status)),
		string(h.AttentionReason), h.LeadSource, h.ConflictingLeadSource, h.TeamMember,
	).Scan(&h.ID, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return eris.Wrap(err, "household: insert household")
	}
	return nil
}

func (s *PostgresStore) GetHousehold(ctx context.Context, id int64) (*Household, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+householdColumns+` FROM households WHERE id = $1`, id)
	return scanHousehold(row)
}

func (s *PostgresStore) ListOpenByContact(ctx context.Context, agencyID, contactID int64) ([]Household, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+householdColumns+` FROM households
		WHERE agency_id = $1 AND contact_id = $2 AND status IN ('open', 'quoted')
		ORDER BY id`,
		agencyID, contactID)
	if err != nil {
		return nil, eris.Wrap(err, "household: list open by contact")
	}
	return scanHouseholds(rows)
}

func (s *PostgresStore) ListOpenByHouseholdKey(ctx context.Context, agencyID int64, key string) ([]Household, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+householdColumns+` FROM households
		WHERE agency_id = $1 AND household_key = $2 AND status IN ('open', 'quoted')
		ORDER BY id`,
		agencyID, key)
	if err != nil {
		return nil, eris.Wrap(err, "household: list open by key")
	}
	return scanHouseholds(rows)
}

func (s *PostgresStore) MarkQuoted(ctx context.Context, householdID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE households SET status = 'quoted', updated_at = now()
		WHERE id = $1 AND status = 'open'`,
		householdID)
	if err != nil {
		return eris.Wrapf(err, "household: mark quoted %d", householdID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("household: not open: %d", householdID)
	}
	return nil
}

func (s *PostgresStore) MarkSold(ctx context.Context, householdID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE households
		SET status = 'sold', attention_reason = '', conflicting_lead_source = '', updated_at = now()
		WHERE id = $1`,
		householdID)
	if err != nil {
		return eris.Wrapf(err, "household: mark sold %d", householdID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("household not found: %d", householdID)
	}
	return nil
}

func (s *PostgresStore) FlagAttention(ctx context.Context, householdID int64, reason AttentionReason, conflictingSource string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE households SET
			attention_reason = $2,
			conflicting_lead_source = CASE WHEN $3 <> '' THEN $3 ELSE conflicting_lead_source END,
			updated_at = now()
		WHERE id = $1`,
		householdID, string(reason), conflictingSource)
	if err != nil {
		return eris.Wrapf(err, "household: flag attention %d", householdID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("household not found: %d", householdID)
	}
	return nil
}

func (s *PostgresStore) BackfillAttribution(ctx context.Context, householdID int64, teamMember, leadSource string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE households SET
			team_member = CASE WHEN team_member = '' THEN $2 ELSE team_member END,
			lead_source = CASE WHEN lead_source = '' THEN $3 ELSE lead_source END,
			updated_at  = now()
		WHERE id = $1`,
		householdID, teamMember, leadSource)
	return eris.Wrapf(err, "household: backfill attribution %d", householdID)
}

func (s *PostgresStore) SetContact(ctx context.Context, householdID, contactID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE households SET contact_id = $2, updated_at = now()
		WHERE id = $1 AND contact_id IS NULL`,
		householdID, contactID)
	return eris.Wrapf(err, "household: set contact on %d", householdID)
}

func (s *PostgresStore) CreateSale(ctx context.Context, sale *Sale) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sales (
			agency_id, contact_id, sale_date, product_type, premium_cents,
			policy_number, team_member, lead_source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		sale.AgencyID, sale.ContactID, sale.SaleDate, sale.ProductType, sale.PremiumCents,
		sale.PolicyNumber, sale.TeamMember, sale.LeadSource,
	).Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		return eris.Wrap(err, "household: insert sale")
	}
	return nil
}

func (s *PostgresStore) GetSale(ctx context.Context, id int64) (*Sale, error) {
	var sale Sale
	err := s.pool.QueryRow(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = $1`, id,
	).Scan(
		&sale.ID, &sale.AgencyID, &sale.ContactID, &sale.SaleDate, &sale.ProductType,
		&sale.PremiumCents, &sale.PolicyNumber, &sale.TeamMember, &sale.LeadSource, &sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "household: get sale %d", id)
	}
	return &sale, nil
}

func (s *PostgresStore) ListUnlinkedSales(ctx context.Context, agencyID int64) ([]Sale, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+qualifySaleColumns("s")+` FROM sales s
		LEFT JOIN sale_links sl ON sl.sale_id = s.id
		WHERE s.agency_id = $1 AND sl.id IS NULL
		ORDER BY s.id`,
		agencyID)
	if err != nil {
		return nil, eris.Wrap(err, "household: list unlinked sales")
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		var sale Sale
		if err := rows.Scan(
			&sale.ID, &sale.AgencyID, &sale.ContactID, &sale.SaleDate, &sale.ProductType,
			&sale.PremiumCents, &sale.PolicyNumber, &sale.TeamMember, &sale.LeadSource, &sale.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "household: scan sale")
		}
		sales = append(sales, sale)
	}
	return sales, eris.Wrap(rows.Err(), "household: list unlinked sales iterate")
}

// CreateSaleLink inserts a linkage record. The sale_links_dedup UNIQUE
// constraint is the structural duplicate guard; a violation surfaces as
// ErrDuplicateLink.
func (s *PostgresStore) CreateSaleLink(ctx context.Context, l *SaleLink) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sale_links (
			id, household_id, sale_id, sale_date, product_type,
			premium_cents, policy_number, confidence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		l.ID, l.HouseholdID, l.SaleID, l.SaleDate, l.ProductType,
		l.PremiumCents, l.PolicyNumber, string(l.Confidence),
	).Scan(&l.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateLink
		}
		return eris.Wrap(err, "household: insert sale link")
	}
	return nil
}

func (s *PostgresStore) GetLinkBySale(ctx context.Context, saleID int64) (*SaleLink, error) {
	var l SaleLink
	var conf string
	err := s.pool.QueryRow(ctx, `
		SELECT id, household_id, sale_id, sale_date, product_type, premium_cents,
		       policy_number, confidence, created_at
		FROM sale_links WHERE sale_id = $1
		ORDER BY created_at LIMIT 1`,
		saleID,
	).Scan(
		&l.ID, &l.HouseholdID, &l.SaleID, &l.SaleDate, &l.ProductType,
		&l.PremiumCents, &l.PolicyNumber, &conf, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "household: get link for sale %d", saleID)
	}
	l.Confidence = Confidence(conf)
	return &l, nil
}

func scanHousehold(row pgx.Row) (*Household, error) {
	var h Household
	var status, reason string
	err := row.Scan(
		&h.ID, &h.AgencyID, &h.ContactID, &h.HouseholdKey, &status, &reason,
		&h.LeadSource, &h.ConflictingLeadSource, &h.TeamMember, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "household: scan household")
	}
	h.Status = Status(status)
	h.AttentionReason = AttentionReason(reason)
	return &h, nil
}

func scanHouseholds(rows pgx.Rows) ([]Household, error) {
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

func qualifySaleColumns(alias string) string {
	return alias + `.id, ` + alias + `.agency_id, ` + alias + `.contact_id, ` + alias + `.sale_date, ` +
		alias + `.product_type, ` + alias + `.premium_cents, ` + alias + `.policy_number, ` +
		alias + `.team_member, ` + alias + `.lead_source, ` + alias + `.created_at`
}

func statusOrOpen(s Status) Status {
	if s == "" {
		return StatusOpen
	}
	return s
}
