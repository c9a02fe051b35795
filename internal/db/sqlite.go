package db

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens a SQLite database at the given DSN and configures WAL mode.
// Used for single-agency installs and for behavioral tests (":memory:").
func OpenSQLite(dsn string) (*sql.DB, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqldb.Exec(pragma); err != nil {
			sqldb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return sqldb, nil
}

// sqliteMigration mirrors the Postgres migrations. Phone and email sets are
// JSON-encoded TEXT; the sale_links dedup constraint is identical.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	agency_id     INTEGER NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL,
	postal_code   TEXT NOT NULL DEFAULT '',
	household_key TEXT NOT NULL,
	phones        TEXT NOT NULL DEFAULT '[]',
	emails        TEXT NOT NULL DEFAULT '[]',
	street        TEXT,
	city          TEXT,
	state         TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (agency_id, household_key)
);

CREATE TABLE IF NOT EXISTS households (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	agency_id               INTEGER NOT NULL,
	contact_id              INTEGER REFERENCES contacts(id),
	household_key           TEXT NOT NULL DEFAULT '',
	status                  TEXT NOT NULL DEFAULT 'open',
	attention_reason        TEXT NOT NULL DEFAULT '',
	lead_source             TEXT NOT NULL DEFAULT '',
	conflicting_lead_source TEXT NOT NULL DEFAULT '',
	team_member             TEXT NOT NULL DEFAULT '',
	created_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_households_agency_contact ON households(agency_id, contact_id);
CREATE INDEX IF NOT EXISTS idx_households_agency_status ON households(agency_id, status);

CREATE TABLE IF NOT EXISTS sales (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	agency_id     INTEGER NOT NULL,
	contact_id    INTEGER REFERENCES contacts(id),
	sale_date     TEXT NOT NULL,
	product_type  TEXT NOT NULL,
	premium_cents INTEGER NOT NULL DEFAULT 0,
	policy_number TEXT NOT NULL DEFAULT '',
	team_member   TEXT NOT NULL DEFAULT '',
	lead_source   TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sale_links (
	id            TEXT PRIMARY KEY,
	household_id  INTEGER NOT NULL REFERENCES households(id),
	sale_id       INTEGER NOT NULL REFERENCES sales(id),
	sale_date     TEXT NOT NULL,
	product_type  TEXT NOT NULL,
	premium_cents INTEGER NOT NULL DEFAULT 0,
	policy_number TEXT NOT NULL DEFAULT '',
	confidence    TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (household_id, sale_date, product_type, premium_cents, policy_number)
);

CREATE INDEX IF NOT EXISTS idx_sale_links_sale ON sale_links(sale_id);

CREATE TABLE IF NOT EXISTS activities (
	id            TEXT PRIMARY KEY,
	agency_id     INTEGER NOT NULL,
	contact_id    INTEGER NOT NULL REFERENCES contacts(id),
	source_module TEXT NOT NULL,
	activity_type TEXT NOT NULL,
	subtype       TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	outcome       TEXT NOT NULL DEFAULT '',
	actor         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_activities_contact ON activities(agency_id, contact_id);

CREATE TABLE IF NOT EXISTS legacy_leads (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	agency_id   INTEGER NOT NULL,
	first_name  TEXT NOT NULL DEFAULT '',
	last_name   TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	phone_raw   TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	street      TEXT,
	city        TEXT,
	state       TEXT,
	contact_id  INTEGER REFERENCES contacts(id),
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS legacy_cancellations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	agency_id   INTEGER NOT NULL,
	first_name  TEXT NOT NULL DEFAULT '',
	last_name   TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	phone_raw   TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	street      TEXT,
	city        TEXT,
	state       TEXT,
	contact_id  INTEGER REFERENCES contacts(id),
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS legacy_renewals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	agency_id   INTEGER NOT NULL,
	first_name  TEXT NOT NULL DEFAULT '',
	last_name   TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	phone_raw   TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	street      TEXT,
	city        TEXT,
	state       TEXT,
	contact_id  INTEGER REFERENCES contacts(id),
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS legacy_winbacks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	agency_id   INTEGER NOT NULL,
	first_name  TEXT NOT NULL DEFAULT '',
	last_name   TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	phone_raw   TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	street      TEXT,
	city        TEXT,
	state       TEXT,
	contact_id  INTEGER REFERENCES contacts(id),
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// MigrateSQLite creates the full schema on a SQLite database.
func MigrateSQLite(ctx context.Context, sqldb *sql.DB) error {
	_, err := sqldb.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}
