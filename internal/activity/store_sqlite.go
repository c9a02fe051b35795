package activity

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a Store over an opened SQLite database.
func NewSQLiteStore(sqldb *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: sqldb}
}

func (s *SQLiteStore) Insert(ctx context.Context, a *Activity) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (
			id, agency_id, contact_id, source_module, activity_type,
			subtype, phone, notes, outcome, actor, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AgencyID, a.ContactID, a.SourceModule, a.ActivityType,
		a.Subtype, a.Phone, a.Notes, a.Outcome, a.Actor, now,
	)
	if err != nil {
		return eris.Wrap(err, "activity: insert")
	}
	a.CreatedAt = now
	return nil
}

// InsertBatch writes entries inside a single transaction. SQLite has no COPY
// protocol; one transaction avoids a journal flush per row.
func (s *SQLiteStore) InsertBatch(ctx context.Context, entries []Activity) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "activity: begin batch")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO activities (
			id, agency_id, contact_id, source_module, activity_type,
			subtype, phone, notes, outcome, actor, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "activity: prepare batch")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int64
	for i := range entries {
		a := &entries[i]
		a.CreatedAt = now
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.AgencyID, a.ContactID, a.SourceModule, a.ActivityType,
			a.Subtype, a.Phone, a.Notes, a.Outcome, a.Actor, now,
		); err != nil {
			return 0, eris.Wrapf(err, "activity: batch insert %s", a.ID)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "activity: commit batch")
	}
	return n, nil
}

func (s *SQLiteStore) ListByContact(ctx context.Context, agencyID, contactID int64) ([]Activity, error) {
	return s.list(ctx, `
		SELECT id, agency_id, contact_id, source_module, activity_type,
		       subtype, phone, notes, outcome, actor, created_at
		FROM activities
		WHERE agency_id = ? AND contact_id = ?
		ORDER BY created_at, id`,
		agencyID, contactID)
}

func (s *SQLiteStore) ListSince(ctx context.Context, agencyID int64, since time.Time) ([]Activity, error) {
	return s.list(ctx, `
		SELECT id, agency_id, contact_id, source_module, activity_type,
		       subtype, phone, notes, outcome, actor, created_at
		FROM activities
		WHERE agency_id = ? AND created_at >= ?
		ORDER BY created_at, id`,
		agencyID, since)
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "activity: list")
	}
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
