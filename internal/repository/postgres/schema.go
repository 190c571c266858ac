package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id BIGSERIAL PRIMARY KEY,
		service_type TEXT,
		attention_code TEXT UNIQUE NOT NULL,
		dni TEXT,
		age INTEGER,
		last_name TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		phone TEXT,
		gender TEXT,
		contact_family TEXT,
		contact_phone TEXT,
		requesting_doctor TEXT,
		study_reason TEXT,
		clinic TEXT,
		registration_date TEXT,
		delivery_date TEXT,
		is_signed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Columns added after the first release.
	`ALTER TABLE patients ADD COLUMN IF NOT EXISTS macro_description TEXT`,
	`ALTER TABLE patients ADD COLUMN IF NOT EXISTS micro_description TEXT`,
	`ALTER TABLE patients ADD COLUMN IF NOT EXISTS diagnosis TEXT`,
	`ALTER TABLE patients ADD COLUMN IF NOT EXISTS photo1 TEXT`,
	`ALTER TABLE patients ADD COLUMN IF NOT EXISTS photo2 TEXT`,
	`ALTER TABLE patients ADD COLUMN IF NOT EXISTS pdf_path TEXT`,
	`CREATE INDEX IF NOT EXISTS idx_patients_pending_artifact
		ON patients (updated_at) WHERE is_signed AND pdf_path IS NULL`,
}

// Migrate brings the schema up to date. Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i, err)
		}
	}
	return nil
}
