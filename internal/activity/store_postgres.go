package activity

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/coverpoint/identity-cli/internal/db"
)

const activityColumns = `id, agency_id, contact_id, source_module, activity_type,
	subtype, phone, notes, outcome, actor, created_at`

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a Store over a pgx pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, a *Activity) error {
	return eris.Wrap(s.pool.QueryRow(ctx, `
		INSERT INTO activities (
			id, agency_id, contact_id, source_module, activity_type,
			subtype, phone, notes, outcome, actor
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		a.ID, a.AgencyID, a.ContactID, a.SourceModule, a.ActivityType,
		a.Subtype, a.Phone, a.Notes, a.Outcome, a.Actor,
	).Scan(&a.CreatedAt), "activity: insert")
}

// InsertBatch writes entries with the COPY protocol. CreatedAt is set here
// because COPY bypasses column defaults only for explicit values.
func (s *PostgresStore) InsertBatch(ctx context.Context, entries []Activity) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(entries))
	for i := range entries {
		a := &entries[i]
		a.CreatedAt = now
		rows = append(rows, []any{
			a.ID, a.AgencyID, a.ContactID, a.SourceModule, a.ActivityType,
			a.Subtype, a.Phone, a.Notes, a.Outcome, a.Actor, a.CreatedAt,
		})
	}
	return db.CopyFrom(ctx, s.pool, "activities", []string{
		"id", "agency_id", "contact_id", "source_module", "activity_type",
		"subtype", "phone", "notes", "outcome", "actor", "created_at",
	}, rows)
}

func (s *PostgresStore) ListByContact(ctx context.Context, agencyID, contactID int64) ([]Activity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE agency_id = $1 AND contact_id = $2
		ORDER BY created_at, id`,
		agencyID, contactID)
	if err != nil {
		return nil, eris.Wrap(err, "activity: list by contact")
	}
	return collectActivities(rows)
}

func (s *PostgresStore) ListSince(ctx context.Context, agencyID int64, since time.Time) ([]Activity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE agency_id = $1 AND created_at >= $2
		ORDER BY created_at, id`,
		agencyID, since)
	if err != nil {
		return nil, eris.Wrap(err, "activity: list since")
	}
	return collectActivities(rows)
}

func collectActivities(rows pgx.Rows) ([]Activity, error) {
	defer rows.Close()
	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(
			&a.ID, &a.AgencyID, &a.ContactID, &a.SourceModule, &a.ActivityType,
			&a.Subtype, &a.Phone, &a.Notes, &a.Outcome, &a.Actor, &a.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "activity: scan row")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "activity: iterate rows")
}
