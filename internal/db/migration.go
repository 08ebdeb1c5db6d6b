package db

import "database/sql"

// Migrate applies the schema. Statements are idempotent so startup can run
// this unconditionally.
//
// The two partial unique indexes on sent_emails are load-bearing: they are
// the data-layer enforcement of at-most-one send per (contact, rule) pair
// and at-most-one initial send per contact. Dispatchers rely on the
// resulting unique-violation error to detect lost races; their pre-checks
// are an optimization, not the guard.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS campaigns (
		id          SERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'draft',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id           SERIAL PRIMARY KEY,
		campaign_id  INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		first_name   TEXT NOT NULL,
		last_name    TEXT NOT NULL,
		email        TEXT NOT NULL,
		company_name TEXT NOT NULL DEFAULT '',
		deleted      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS contact_custom_fields (
		contact_id INTEGER NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		value      TEXT NOT NULL,
		PRIMARY KEY (contact_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id          SERIAL PRIMARY KEY,
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		finalized   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_turns (
		id              SERIAL PRIMARY KEY,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS email_templates (
		id               SERIAL PRIMARY KEY,
		campaign_id      INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		name             TEXT NOT NULL,
		subject_template TEXT NOT NULL,
		body_template    TEXT NOT NULL,
		user_prompt      TEXT NOT NULL DEFAULT '',
		is_follow_up     BOOLEAN NOT NULL DEFAULT FALSE,
		is_primary       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_templates_primary
		ON email_templates (campaign_id)
		WHERE is_primary AND NOT is_follow_up`,
	`CREATE TABLE IF NOT EXISTS follow_up_rules (
		id               SERIAL PRIMARY KEY,
		campaign_id      INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		subject_template TEXT NOT NULL,
		body_template    TEXT NOT NULL,
		delay_days       INTEGER NOT NULL CHECK (delay_days >= 0),
		condition        TEXT NOT NULL DEFAULT 'sent_anyway',
		is_active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sent_emails (
		id                   SERIAL PRIMARY KEY,
		campaign_id          INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		contact_id           INTEGER NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
		triggered_by_rule_id INTEGER REFERENCES follow_up_rules(id) ON DELETE SET NULL,
		subject              TEXT NOT NULL,
		body                 TEXT NOT NULL,
		status               TEXT NOT NULL DEFAULT 'sent',
		tracking_pixel_id    TEXT NOT NULL UNIQUE,
		sent_at              TIMESTAMPTZ NOT NULL,
		opened_at            TIMESTAMPTZ,
		last_opened_at       TIMESTAMPTZ,
		first_opened_ip      TEXT NOT NULL DEFAULT '',
		open_count           INTEGER NOT NULL DEFAULT 0,
		clicked_at           TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_sent_contact_rule
		ON sent_emails (contact_id, triggered_by_rule_id)
		WHERE triggered_by_rule_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_sent_contact_initial
		ON sent_emails (campaign_id, contact_id)
		WHERE triggered_by_rule_id IS NULL`,
}

func Migrate(conn *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
