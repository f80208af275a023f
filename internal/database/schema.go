package database

import (
	"database/sql"
	"fmt"
)

// schemaDDL is applied at startup. Statements are idempotent; for a managed
// deployment the same DDL lives in versioned migrations.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            SERIAL PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password      TEXT NOT NULL,
		first_name    TEXT NOT NULL,
		last_name     TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'user',
		account_id    TEXT NOT NULL UNIQUE,
		phone_number  TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id            SERIAL PRIMARY KEY,
		account_id    TEXT NOT NULL UNIQUE,
		account_name  TEXT NOT NULL,
		balance       BIGINT NOT NULL DEFAULT 0,
		status        TEXT NOT NULL DEFAULT 'ACTIVE',
		version       INTEGER NOT NULL DEFAULT 1,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS consultants (
		account_id    TEXT PRIMARY KEY REFERENCES accounts(account_id),
		fee_per_unit  BIGINT NOT NULL,
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id            SERIAL PRIMARY KEY,
		payment_ref   TEXT NOT NULL UNIQUE,
		account_id    TEXT NOT NULL REFERENCES accounts(account_id),
		money_amount  BIGINT NOT NULL,
		point_amount  BIGINT NOT NULL,
		method        TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'PENDING',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_account_status
		ON purchases (account_id, status)`,
	`CREATE TABLE IF NOT EXISTS consultations (
		id                    TEXT PRIMARY KEY,
		customer_account_id   TEXT NOT NULL REFERENCES accounts(account_id),
		consultant_account_id TEXT NOT NULL REFERENCES accounts(account_id),
		consult_type          TEXT NOT NULL,
		method                TEXT NOT NULL,
		fee_per_unit          BIGINT NOT NULL,
		started_at            TIMESTAMPTZ NOT NULL,
		ended_at              TIMESTAMPTZ,
		duration_seconds      BIGINT NOT NULL DEFAULT 0,
		billed_units          BIGINT NOT NULL DEFAULT 0,
		charge                BIGINT NOT NULL DEFAULT 0,
		payout                BIGINT NOT NULL DEFAULT 0,
		status                TEXT NOT NULL DEFAULT 'IN_PROGRESS',
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_consultations_customer_status
		ON consultations (customer_account_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_consultations_consultant_ended
		ON consultations (consultant_account_id, ended_at)`,
	`CREATE TABLE IF NOT EXISTS point_entries (
		id            SERIAL PRIMARY KEY,
		ref           TEXT NOT NULL,
		entry_type    TEXT NOT NULL,
		account_id    TEXT NOT NULL REFERENCES accounts(account_id),
		amount        BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_point_entries_account
		ON point_entries (account_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS settlement_snapshots (
		id                    SERIAL PRIMARY KEY,
		consultant_account_id TEXT NOT NULL REFERENCES accounts(account_id),
		month                 CHAR(7) NOT NULL,
		session_count         BIGINT NOT NULL,
		billed_seconds        BIGINT NOT NULL,
		total_charge          BIGINT NOT NULL,
		total_payout          BIGINT NOT NULL,
		payout_rate           TEXT NOT NULL,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (consultant_account_id, month)
	)`,
	`CREATE TABLE IF NOT EXISTS settlement_items (
		snapshot_id     INTEGER NOT NULL REFERENCES settlement_snapshots(id) ON DELETE CASCADE,
		consultation_id TEXT NOT NULL REFERENCES consultations(id),
		billed_units    BIGINT NOT NULL,
		charge          BIGINT NOT NULL,
		payout          BIGINT NOT NULL,
		PRIMARY KEY (snapshot_id, consultation_id)
	)`,
	`CREATE TABLE IF NOT EXISTS settlement_summaries (
		month            CHAR(7) PRIMARY KEY,
		consultant_count BIGINT NOT NULL,
		session_count    BIGINT NOT NULL,
		total_charge     BIGINT NOT NULL,
		total_payout     BIGINT NOT NULL,
		computed_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates all tables and indexes if they do not exist.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema bootstrap failed: %w", err)
		}
	}
	return nil
}
